package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestLimiter(perMinute, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: perMinute, BurstSize: burst})
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Take(t *testing.T) {
	rl, clock := newTestLimiter(60, 5)
	now := clock.Now()

	for i := range 5 {
		d := rl.take("192.0.2.1", now)
		if !d.allowed {
			t.Fatalf("request %d should be allowed (burst)", i+1)
		}
		if d.remaining != 4-i {
			t.Errorf("remaining after %d = %d, want %d", i+1, d.remaining, 4-i)
		}
	}

	d := rl.take("192.0.2.1", now)
	if d.allowed {
		t.Error("6th request should be denied")
	}
	if want := now.Add(5 * time.Second); !d.reset.Equal(want) {
		t.Errorf("reset = %v, want %v", d.reset, want)
	}

	// 60/min refills one token per second.
	now = now.Add(time.Second)
	if !rl.take("192.0.2.1", now).allowed {
		t.Error("request after refill should be allowed")
	}
	if rl.take("192.0.2.1", now).allowed {
		t.Error("refilled token already spent")
	}

	// Never refills past the burst.
	now = now.Add(time.Hour)
	if d := rl.take("192.0.2.1", now); d.remaining != 4 {
		t.Errorf("remaining after long idle = %d, want 4", d.remaining)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl, clock := newTestLimiter(60, 3)
	now := clock.Now()

	for i := range 3 {
		if !rl.take("192.0.2.1", now).allowed {
			t.Errorf("IP1 request %d should be allowed", i+1)
		}
	}
	if rl.take("192.0.2.1", now).allowed {
		t.Error("IP1 should be rate limited")
	}
	for i := range 3 {
		if !rl.take("192.0.2.2", now).allowed {
			t.Errorf("IP2 request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_DefaultBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60})
	if rl.config.BurstSize != 10 {
		t.Errorf("BurstSize = %d, want 10", rl.config.BurstSize)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, clock := newTestLimiter(60, 3)
	rl.take("192.0.2.1", clock.Now())
	clock.Advance(4 * time.Minute)
	rl.take("192.0.2.2", clock.Now())

	clock.Advance(2 * time.Minute)
	rl.sweep()

	if rl.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, clock := newTestLimiter(60, 2)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for range 2 {
		if w := do(); w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
	}
	if env := decode(t, w); env.Error == nil || env.Error.Code != CodeRateLimited {
		t.Errorf("error = %+v", env.Error)
	}

	clock.Advance(time.Second)
	if w := do(); w.Code != http.StatusOK {
		t.Errorf("status after refill = %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"remote addr", false, "192.0.2.1:1234", "", "", "192.0.2.1"},
		{"remote addr without port", false, "192.0.2.1", "", "", "192.0.2.1"},
		{"ipv6", false, "[2001:db8::1]:443", "", "", "2001:db8::1"},
		{"garbage", false, "garbage", "", "", "unknown"},
		{"forwarded ignored", false, "10.0.0.1:1", "203.0.113.5", "", "10.0.0.1"},
		{"real ip ignored", false, "10.0.0.1:1", "", "203.0.113.9", "10.0.0.1"},
		{"forwarded leftmost", true, "10.0.0.1:1", "203.0.113.5, 10.0.0.2", "", "203.0.113.5"},
		{"forwarded invalid", true, "10.0.0.1:1", "not-an-ip", "", "10.0.0.1"},
		{"real ip", true, "10.0.0.1:1", "", "203.0.113.9", "203.0.113.9"},
		{"real ip padded", true, "10.0.0.1:1", "", " 203.0.113.9 ", "203.0.113.9"},
		{"trusted without headers", true, "10.0.0.1:1", "", "", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := clientIP(req, tt.trust); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_RotatedForwardedFor(t *testing.T) {
	tests := []struct {
		trust   bool
		limited bool
	}{
		{false, true},
		{true, false},
	}

	for _, tt := range tests {
		rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 1, TrustProxy: tt.trust})
		handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		limited := false
		for i := range 3 {
			req := httptest.NewRequest(http.MethodGet, "/crossrefs?ref=John+3:16", nil)
			req.RemoteAddr = "192.0.2.50:4000"
			req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i+1))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code == http.StatusTooManyRequests {
				limited = true
			}
		}
		if limited != tt.limited {
			t.Errorf("trustProxy=%v: limited = %v, want %v", tt.trust, limited, tt.limited)
		}
	}
}
