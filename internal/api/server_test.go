package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/FocuswithJustin/JuniperXref/core/engine"
	"github.com/FocuswithJustin/JuniperXref/core/parallels"
	"github.com/FocuswithJustin/JuniperXref/core/xref"
	"github.com/FocuswithJustin/JuniperXref/internal/config"
	"github.com/FocuswithJustin/JuniperXref/internal/logging"
	"github.com/FocuswithJustin/JuniperXref/internal/metrics"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	logging.InitLogger(logging.LevelError, logging.FormatJSON)
	os.Exit(m.Run())
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	return v
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Data.CrossRefs = "../../core/xref/testdata/cross_references.txt"
	cfg.Data.Parallels = "../../core/parallels/testdata/parallels.json"
	cfg.Server.RateLimitRequests = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, m *metrics.Metrics) *Server {
	t.Helper()
	eng, err := engine.New(context.Background(), cfg.Engine())
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return NewServer(eng, cfg, m)
}

func get(s *Server, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := get(s, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	env := decode(t, w)
	if !env.Success {
		t.Error("expected success")
	}
	data := decodeData[map[string]any](t, env)
	if data["name"] != "Juniper Xref API" {
		t.Errorf("name = %v", data["name"])
	}

	w = get(s, "/nowhere")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", w.Code)
	}
	if env := decode(t, w); env.Error == nil || env.Error.Code != CodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := get(s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	health := decodeData[HealthResult](t, decode(t, w))
	if health.Status != "ok" {
		t.Errorf("status = %q", health.Status)
	}
	if health.Dataset.CrossReferences.Edges != 15 || health.Dataset.CuratedEntries != 6 {
		t.Errorf("dataset = %+v", health.Dataset)
	}
	if len(health.Dataset.Citation.Sources) != 2 {
		t.Errorf("citation sources = %d", len(health.Dataset.Citation.Sources))
	}
	if len(health.Dataset.Revision) != 25 {
		t.Errorf("revision = %q, want two 12-digit digests", health.Dataset.Revision)
	}
}

func TestHandleNormalize(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	tests := []struct {
		ref        string
		normalized string
		key        string
		known      bool
	}{
		{"gen+1:1", "Genesis 1:1", "genesis_1_1", true},
		{"1+Cor+13:4-7", "1 Corinthians 13:4-7", "1_corinthians_13_4-7", true},
		{"Hezekiah+1:1", "Hezekiah 1:1", "hezekiah_1_1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			w := get(s, "/normalize?ref="+tt.ref)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			res := decodeData[NormalizeResult](t, decode(t, w))
			if res.Normalized != tt.normalized || res.Key != tt.key || res.Known != tt.known {
				t.Errorf("got %+v", res)
			}
		})
	}
}

func TestHandleCrossRefs(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := get(s, "/crossrefs?ref=Gen+1:1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	env := decode(t, w)
	res := decodeData[xref.Result](t, env)
	if res.Total != 6 || res.Showing != 5 || !res.HasMore {
		t.Errorf("paging = %d/%d/%v", res.Total, res.Showing, res.HasMore)
	}
	if res.References[0].Reference != "John 1:1" || res.References[0].Votes != 50 {
		t.Errorf("first = %+v", res.References[0])
	}
	if env.Meta.Total != 6 {
		t.Errorf("meta total = %d", env.Meta.Total)
	}

	res = decodeData[xref.Result](t, decode(t, get(s, "/crossrefs?ref=Genesis+1:1&min_votes=25&max=2")))
	if res.Total != 4 || res.Showing != 2 {
		t.Errorf("filtered paging = %d/%d", res.Total, res.Showing)
	}
}

func TestHandleCrossRefsMiss(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := get(s, "/crossrefs?ref=Rev+22:21")
	if w.Code != http.StatusOK {
		t.Fatalf("miss status = %d", w.Code)
	}
	res := decodeData[xref.Result](t, decode(t, w))
	if res.References == nil || len(res.References) != 0 || res.Total != 0 {
		t.Errorf("miss = %+v", res)
	}
}

func TestHandleChapter(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	res := decodeData[ChapterResult](t, decode(t, get(s, "/chapter?ref=Genesis+1")))
	if len(res.Verses) != 4 {
		t.Fatalf("verses = %d, want 4", len(res.Verses))
	}
	if res.Verses[0].Reference != "Genesis 1:1" || res.Verses[0].EdgeCount != 6 {
		t.Errorf("first = %+v", res.Verses[0])
	}

	res = decodeData[ChapterResult](t, decode(t, get(s, "/chapter?ref=Nowhere")))
	if res.Verses == nil || len(res.Verses) != 0 {
		t.Errorf("unknown chapter verses = %v", res.Verses)
	}
}

func TestHandleParallels(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := get(s, "/parallels?ref=Matthew+14:13-21")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decodeData[ParallelsResult](t, decode(t, w))
	if res.Entry == nil || res.Entry.Event != "Feeding of the 5000" {
		t.Fatalf("entry = %+v", res.Entry)
	}
	if len(res.Parallels) != 3 {
		t.Fatalf("parallels = %d, want 3", len(res.Parallels))
	}
	for _, p := range res.Parallels {
		if p.Relationship != parallels.RelSynoptic || p.Confidence != 95 {
			t.Errorf("passage = %+v", p)
		}
	}
	if res.Analysis == nil || len(res.Analysis.Common) != 1 || res.Analysis.Common[0] != "Twelve baskets left over" {
		t.Errorf("analysis = %+v", res.Analysis)
	}
	if res.Citation.Version != "1.0-test" {
		t.Errorf("citation = %+v", res.Citation)
	}

	// A mode that excludes the curated relationship leaves nothing.
	res = decodeData[ParallelsResult](t, decode(t, get(s, "/parallels?ref=Matthew+14:13-21&mode=quotation&crossrefs=false")))
	if res.Entry != nil || len(res.Parallels) != 0 || res.Analysis != nil {
		t.Errorf("quotation mode = %+v", res)
	}

	res = decodeData[ParallelsResult](t, decode(t, get(s, "/parallels?ref=Matthew+14:13-21&max=1")))
	if len(res.Parallels) != 1 {
		t.Errorf("max=1 returned %d", len(res.Parallels))
	}
}

func TestParameterErrors(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	tests := []struct {
		target string
		code   string
	}{
		{"/normalize", CodeMissingParam},
		{"/crossrefs?ref=", CodeMissingParam},
		{"/chapter?ref=%00", CodeMissingParam},
		{"/crossrefs?ref=Gen+1:1&max=abc", CodeInvalidParam},
		{"/crossrefs?ref=Gen+1:1&max=0", CodeInvalidParam},
		{"/crossrefs?ref=Gen+1:1&max=1000", CodeInvalidParam},
		{"/crossrefs?ref=Gen+1:1&min_votes=-1", CodeInvalidParam},
		{"/parallels?ref=Gen+1:1&mode=typology", CodeInvalidMode},
		{"/parallels?ref=Gen+1:1&crossrefs=maybe", CodeInvalidParam},
		{"/parallels?ref=Gen+1:1&max=x", CodeInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(s, tt.target)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			env := decode(t, w)
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want %s", env.Error, tt.code)
			}
		})
	}
}

func TestResponseCache(t *testing.T) {
	m := metrics.New(nil)
	s := newTestServer(t, testConfig(), m)

	first := decode(t, get(s, "/crossrefs?ref=Gen+1:1"))
	if first.Meta.Cached {
		t.Error("first response should not be cached")
	}
	// Different spelling of the same verse hits the same entry.
	second := decode(t, get(s, "/crossrefs?ref=genesis+1.1"))
	if !second.Meta.Cached {
		t.Error("second response should be cached")
	}
	if string(first.Data) != string(second.Data) {
		t.Error("cached data differs")
	}

	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("lookup", metrics.ResultHit)); got != 1 {
		t.Errorf("lookup hits = %v", got)
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("lookup", metrics.ResultCache)); got != 1 {
		t.Errorf("lookup cached = %v", got)
	}

	health := decodeData[HealthResult](t, decode(t, get(s, "/health")))
	if health.Cache.Entries != 1 || health.Cache.Hits != 1 {
		t.Errorf("cache stats = %+v", health.Cache)
	}
}

func TestCacheDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.TTL = 0
	s := newTestServer(t, cfg, nil)

	get(s, "/crossrefs?ref=Gen+1:1")
	if env := decode(t, get(s, "/crossrefs?ref=Gen+1:1")); env.Meta.Cached {
		t.Error("caching should be disabled")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), metrics.New(nil))
	get(s, "/crossrefs?ref=Rev+1:1")

	w := get(s, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"xref_queries_total", "xref_dataset_edges 15", "http_requests_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}

	s = newTestServer(t, testConfig(), nil)
	if w := get(s, "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled status = %d", w.Code)
	}
}

func TestMiddlewareChain(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)

	w := get(s, "/health")
	for _, h := range []string{"X-Request-ID", "X-Content-Type-Options", "Content-Security-Policy", "Access-Control-Allow-Origin"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", w.Code)
	}
}

func TestRateLimitWired(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitRequests = 60
	cfg.Server.RateLimitBurst = 1
	s := newTestServer(t, cfg, nil)
	h := s.Handler()

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestServeShutdown(t *testing.T) {
	s := newTestServer(t, testConfig(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestConcurrentQueries(t *testing.T) {
	m := metrics.New(nil)
	s := newTestServer(t, testConfig(), m)
	h := s.Handler()

	const n = 20
	codes := make(chan int, n)
	for range n {
		go func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parallels?ref=Psalm+22:1", nil))
			codes <- w.Code
		}()
	}
	for range n {
		if code := <-codes; code != http.StatusOK {
			t.Errorf("status = %d", code)
		}
	}

	hits := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("parallels", metrics.ResultHit))
	cached := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("parallels", metrics.ResultCache))
	if hits+cached != n {
		t.Errorf("hits %v + cached %v != %d", hits, cached, n)
	}
	if s.cache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", s.cache.Len())
	}
}
