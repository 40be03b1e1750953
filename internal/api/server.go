// Package api serves the cross-reference engine over a JSON REST API.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FocuswithJustin/JuniperXref/core/engine"
	"github.com/FocuswithJustin/JuniperXref/core/errors"
	"github.com/FocuswithJustin/JuniperXref/internal/cache"
	"github.com/FocuswithJustin/JuniperXref/internal/config"
	"github.com/FocuswithJustin/JuniperXref/internal/logging"
	"github.com/FocuswithJustin/JuniperXref/internal/metrics"
	"github.com/FocuswithJustin/JuniperXref/internal/server"
)

// Version is reported by / and /health.
var Version = "dev"

// Server is the HTTP front end over a loaded engine.
type Server struct {
	engine  *engine.Engine
	cfg     config.ServerConfig
	metrics *metrics.Metrics
	cache   *cache.TTLCache[string, cachedResult]
	group   singleflight.Group
	limiter *RateLimiter
	started time.Time
}

// NewServer builds a server. A nil m disables query metrics and the
// /metrics endpoint; a zero cache TTL disables response caching.
func NewServer(eng *engine.Engine, cfg *config.Config, m *metrics.Metrics) *Server {
	s := &Server{
		engine:  eng,
		cfg:     cfg.Server,
		metrics: m,
		started: time.Now(),
	}
	if cfg.Cache.TTL > 0 {
		s.cache = cache.New[string, cachedResult](cfg.Cache.TTL, cfg.Cache.MaxEntries)
	}
	if cfg.Server.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.Server.RateLimitRequests,
			BurstSize:         cfg.Server.RateLimitBurst,
			TrustProxy:        cfg.Server.TrustProxy,
		})
	}
	if m != nil {
		m.SetDataset(eng.Stats())
	}
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/normalize", s.handleNormalize)
	mux.HandleFunc("/crossrefs", s.handleCrossRefs)
	mux.HandleFunc("/chapter", s.handleChapter)
	mux.HandleFunc("/parallels", s.handleParallels)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return mux
}

// Handler returns the routes wrapped in the middleware chain. From the
// outside in: request logging, metrics, CORS, rate limiting, method
// filtering, security headers.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = server.SecurityHeadersWithCSP(server.APICSPConfig(), s.setupRoutes())
	handler = server.MethodsMiddleware([]string{http.MethodGet, http.MethodHead}, handler)

	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}

	handler = server.CORSMiddlewareWithConfig(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, handler)

	if s.metrics != nil {
		handler = s.metrics.Middleware(handler)
	}

	return logging.CombinedMiddleware(handler)
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewIO("listen", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	port := s.cfg.Port
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	stats := s.engine.Stats()
	logging.ServerStartup("rest_api", "http", port,
		"edges", stats.CrossReferences.Edges,
		"curated_entries", stats.CuratedEntries,
		"revision", stats.Revision,
		"trust_proxy", s.cfg.TrustProxy,
		"rate_limit", strconv.Itoa(s.cfg.RateLimitRequests)+"/min",
		"cache", s.cache != nil,
		"metrics", s.metrics != nil)
	if len(s.cfg.AllowedOrigins) == 0 {
		logging.Warn("CORS allows all origins", "recommendation", "set server.allowedOrigins in production")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return errors.NewIO("serve", ln.Addr().String(), err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logging.Info("server shutting down", "timeout", s.cfg.ShutdownTimeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.NewIO("serve", ln.Addr().String(), err)
	}
	return nil
}
