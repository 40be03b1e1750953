package api

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiterConfig sets the sustained rate and burst allowed per client.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int

	// TrustProxy keys clients by X-Forwarded-For/X-Real-IP instead of the
	// connection address.
	TrustProxy bool
}

// bucket is one client's token balance as of stamp.
type bucket struct {
	tokens float64
	stamp  time.Time
}

// decision is the outcome of one take.
type decision struct {
	allowed   bool
	remaining int
	reset     time.Time // when the bucket is full again
}

// RateLimiter is a per-client token bucket limiter keyed by IP.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*bucket
	config    RateLimiterConfig
	burst     float64
	perSecond float64
	idleTTL   time.Duration
	now       func() time.Time
}

// NewRateLimiter builds a limiter; BurstSize defaults to 10. Idle clients
// are forgotten only while Run is active.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 10
	}
	return &RateLimiter{
		clients:   make(map[string]*bucket),
		config:    config,
		burst:     float64(config.BurstSize),
		perSecond: float64(config.RequestsPerMinute) / 60,
		idleTTL:   5 * time.Minute,
		now:       time.Now,
	}
}

// take refills key's bucket up to now and spends a token if one is there.
func (rl *RateLimiter) take(key string, now time.Time) decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]
	if !ok {
		b = &bucket{tokens: rl.burst, stamp: now}
		rl.clients[key] = b
	}
	b.tokens = min(rl.burst, b.tokens+now.Sub(b.stamp).Seconds()*rl.perSecond)
	b.stamp = now

	d := decision{reset: now}
	if b.tokens >= 1 {
		b.tokens--
		d.allowed = true
	}
	if deficit := rl.burst - b.tokens; deficit > 0 && rl.perSecond > 0 {
		d.reset = now.Add(time.Duration(deficit / rl.perSecond * float64(time.Second)))
	}
	d.remaining = int(b.tokens)
	return d
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Run forgets idle clients once a minute until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	cutoff := rl.now().Add(-rl.idleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.clients {
		if b.stamp.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Middleware rejects over-limit clients with 429 and reports the client's
// balance in X-RateLimit-* headers on every response.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := rl.now()
		d := rl.take(clientIP(r, rl.config.TrustProxy), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))

		if !d.allowed {
			wait := strconv.Itoa(int(d.reset.Sub(now).Seconds()) + 1)
			h.Set("Retry-After", wait)
			respondError(w, http.StatusTooManyRequests, CodeRateLimited,
				"rate limit exceeded, retry in "+wait+"s")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the connection's address. With trustProxy it prefers the
// leftmost X-Forwarded-For entry, then X-Real-IP, taking the first that
// parses.
func clientIP(r *http.Request, trustProxy bool) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	candidates := []string{host}
	if trustProxy {
		forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		candidates = []string{forwarded, r.Header.Get("X-Real-IP"), host}
	}
	for _, c := range candidates {
		if addr, err := netip.ParseAddr(strings.TrimSpace(c)); err == nil {
			return addr.String()
		}
	}
	return "unknown"
}
