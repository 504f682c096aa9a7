// Package metrics provides Prometheus instrumentation for the split engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SplitsTotal counts allocations computed, partitioned by split type.
	SplitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitfx_splits_total",
		Help: "Total number of split allocations computed",
	}, []string{"type"})

	// SplitLatency tracks allocation latency including rate resolution.
	SplitLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "splitfx_split_latency_seconds",
		Help:    "Split allocation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// RateLookupsTotal counts rate resolutions by where the answer came from.
	RateLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitfx_rate_lookups_total",
		Help: "FX rate lookups by source (hot, store, provider, parity)",
	}, []string{"source"})

	// ProviderProbesTotal counts external provider probes by outcome.
	ProviderProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitfx_provider_probes_total",
		Help: "External FX provider probes by provider and outcome",
	}, []string{"provider", "outcome"})

	// ParityFallbacksTotal counts lookups that degraded to the 1:1 default.
	ParityFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitfx_parity_fallbacks_total",
		Help: "Rate resolutions that fell back to parity",
	})

	// RateUpsertsTotal counts persisted rate writes.
	RateUpsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitfx_rate_upserts_total",
		Help: "FX rate rows written (insert or update)",
	})

	// BackfillInsertedTotal counts rows created by backfill runs.
	BackfillInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitfx_backfill_inserted_total",
		Help: "FX rate rows inserted by backfill",
	})

	// WebSocketClients tracks connected rate-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "splitfx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitfx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "splitfx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so http.ResponseController can reach
// Hijacker/Flusher (needed for the WebSocket upgrade).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
