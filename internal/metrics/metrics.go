// Package metrics defines the Prometheus collectors for the query service
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FocuswithJustin/JuniperXref/core/engine"
)

// Query results recorded in xref_queries_total.
const (
	ResultHit   = "hit"
	ResultEmpty = "empty"
	ResultError = "error"
	ResultCache = "cached"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	QueriesTotal         *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestsInFlight prometheus.Gauge
	DatasetEdges         prometheus.Gauge
	DatasetFromVerses    prometheus.Gauge
	CuratedEntries       prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xref_queries_total",
				Help: "Engine queries by operation and result (hit, empty, error, cached).",
			},
			[]string{"operation", "result"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xref_query_duration_seconds",
				Help:    "Engine query latency in seconds.",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DatasetEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "xref_dataset_edges",
				Help: "Cross-reference edges loaded.",
			},
		),
		DatasetFromVerses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "xref_dataset_from_verses",
				Help: "Verses with at least one cross-reference.",
			},
		),
		CuratedEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "xref_curated_entries",
				Help: "Curated parallel entries loaded.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.DatasetEdges,
		m.DatasetFromVerses,
		m.CuratedEntries,
	)
	return m
}

// SetDataset records the size of the loaded datasets.
func (m *Metrics) SetDataset(s engine.Stats) {
	m.DatasetEdges.Set(float64(s.CrossReferences.Edges))
	m.DatasetFromVerses.Set(float64(s.CrossReferences.FromVerses))
	m.CuratedEntries.Set(float64(s.CuratedEntries))
}

// ObserveQuery records one engine query.
func (m *Metrics) ObserveQuery(operation, result string, d time.Duration) {
	m.QueriesTotal.WithLabelValues(operation, result).Inc()
	m.QueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records HTTP request count and the in-flight gauge.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
	})
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}
