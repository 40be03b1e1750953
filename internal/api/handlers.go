package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/FocuswithJustin/JuniperXref/core/engine"
	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/core/parallels"
	"github.com/FocuswithJustin/JuniperXref/core/ref"
	"github.com/FocuswithJustin/JuniperXref/core/xref"
	"github.com/FocuswithJustin/JuniperXref/internal/logging"
	"github.com/FocuswithJustin/JuniperXref/internal/metrics"
	"github.com/FocuswithJustin/JuniperXref/internal/server"
)

// Query parameter bounds.
const (
	maxCrossRefResults = 100
	maxParallelResults = 50
)

// NormalizeResult is the /normalize payload.
type NormalizeResult struct {
	Input      string  `json:"input"`
	Reference  ref.Ref `json:"reference"`
	Normalized string  `json:"normalized"`
	Key        string  `json:"key"`
	Known      bool    `json:"known"`
}

// ChapterResult is the /chapter payload.
type ChapterResult struct {
	Reference string              `json:"reference"`
	Verses    []xref.VerseSummary `json:"verses"`
}

// ParallelsResult is the /parallels payload: the correlator result plus the
// detail comparison when a curated entry applied.
type ParallelsResult struct {
	parallels.Result
	Analysis *parallels.Analysis `json:"analysis,omitempty"`
}

// HealthResult is the /health payload.
type HealthResult struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Dataset       engine.Stats `json:"dataset"`
	Cache         CacheStats   `json:"cache"`
}

// CacheStats reports response cache usage.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

type cachedResult struct {
	data  any
	total int
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, CodeNotFound, "no such endpoint: "+r.URL.Path)
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":    "Juniper Xref API",
		"version": Version,
		"endpoints": map[string]string{
			"health":    "GET /health",
			"normalize": "GET /normalize?ref=",
			"crossrefs": "GET /crossrefs?ref=&min_votes=&max=",
			"chapter":   "GET /chapter?ref=",
			"parallels": "GET /parallels?ref=&mode=&max=&crossrefs=",
			"metrics":   "GET /metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResult{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Dataset:       s.engine.Stats(),
	}
	if s.cache != nil {
		health.Cache.Entries = s.cache.Len()
		health.Cache.Hits, health.Cache.Misses = s.cache.Stats()
	}
	respond(w, http.StatusOK, health)
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	raw, ok := requireRef(w, r)
	if !ok {
		return
	}

	s.serveQuery(w, r, "normalize", raw, "normalize|"+raw, func() (any, int) {
		parsed := ref.Normalize(raw)
		return NormalizeResult{
			Input:      raw,
			Reference:  parsed,
			Normalized: parsed.String(),
			Key:        ref.ToKey(parsed),
			Known:      parsed.Known(),
		}, 1
	})
}

func (s *Server) handleCrossRefs(w http.ResponseWriter, r *http.Request) {
	raw, ok := requireRef(w, r)
	if !ok {
		return
	}
	minVotes, err := intParam(r, "min_votes", 0, 0, 1<<20)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}
	maxResults, err := intParam(r, "max", xref.DefaultMaxResults, 1, maxCrossRefResults)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}

	reference := ref.NormalizeString(raw)
	key := "crossrefs|" + reference + "|" + strconv.Itoa(minVotes) + "|" + strconv.Itoa(maxResults)
	s.serveQuery(w, r, "lookup", reference, key, func() (any, int) {
		res := s.engine.Index.Lookup(reference, xref.LookupOptions{
			MinVotes:   minVotes,
			MaxResults: maxResults,
		})
		return res, res.Total
	})
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	raw, ok := requireRef(w, r)
	if !ok {
		return
	}

	reference := ref.NormalizeString(raw)
	s.serveQuery(w, r, "chapter", reference, "chapter|"+reference, func() (any, int) {
		verses := s.engine.Index.Chapter(reference)
		if verses == nil {
			verses = []xref.VerseSummary{}
		}
		return ChapterResult{Reference: reference, Verses: verses}, len(verses)
	})
}

func (s *Server) handleParallels(w http.ResponseWriter, r *http.Request) {
	raw, ok := requireRef(w, r)
	if !ok {
		return
	}

	opts := parallels.DefaultOptions()
	mode, err := parallels.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidMode, err.Error())
		return
	}
	opts.Mode = mode
	if opts.MaxParallels, err = intParam(r, "max", parallels.DefaultMaxParallels, 1, maxParallelResults); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}
	if opts.UseCrossReferences, err = boolParam(r, "crossrefs", true); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidParam, err.Error())
		return
	}

	reference := ref.NormalizeString(raw)
	key := "parallels|" + reference + "|" + string(opts.Mode) + "|" +
		strconv.Itoa(opts.MaxParallels) + "|" + strconv.FormatBool(opts.UseCrossReferences)
	s.serveQuery(w, r, "parallels", reference, key, func() (any, int) {
		res := ParallelsResult{Result: s.engine.Correlator.Find(reference, opts)}
		if res.Entry != nil {
			analysis := res.Analyze()
			res.Analysis = &analysis
		}
		return res, len(res.Parallels)
	})
}

// serveQuery answers from the response cache when possible, otherwise runs
// the query, caches it and records metrics and a query_served event.
func (s *Server) serveQuery(w http.ResponseWriter, r *http.Request, operation, reference, cacheKey string, run func() (any, int)) {
	start := time.Now()

	if s.cache != nil {
		if c, ok := s.cache.Get(cacheKey); ok {
			s.observe(operation, metrics.ResultCache, start)
			respondMeta(w, http.StatusOK, c.data, &APIMeta{Total: c.total, Cached: true})
			return
		}
	}

	// Concurrent misses for the same key share one evaluation.
	v, _, _ := s.group.Do(cacheKey, func() (any, error) {
		data, total := run()
		c := cachedResult{data: data, total: total}
		if s.cache != nil {
			s.cache.Set(cacheKey, c)
		}
		return c, nil
	})
	c := v.(cachedResult)
	data, total := c.data, c.total

	result := metrics.ResultHit
	if total == 0 {
		result = metrics.ResultEmpty
	}
	s.observe(operation, result, start)
	logging.QueryServed(r.Context(), operation, reference, total)

	respondMeta(w, http.StatusOK, data, &APIMeta{Total: total})
}

func (s *Server) observe(operation, result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(operation, result, time.Since(start))
	}
}

// requireRef returns the sanitized ref parameter, answering 400 when it is
// missing.
func requireRef(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := server.QueryParam(r, "ref")
	if raw == "" {
		respondError(w, http.StatusBadRequest, CodeMissingParam, "missing required parameter: ref")
		return "", false
	}
	return raw, true
}

// intParam parses an optional integer parameter within [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewValidation(name, s, "must be an integer")
	}
	if n < lo || n > hi {
		return 0, errors.NewValidation(name, s, "must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
	}
	return n, nil
}

// boolParam parses an optional boolean parameter.
func boolParam(r *http.Request, name string, def bool) (bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.NewValidation(name, s, "must be true or false")
	}
	return b, nil
}
