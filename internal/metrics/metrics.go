// Package metrics provides Prometheus metrics for Alexander Assets.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alexander"

// Variation request outcomes.
const (
	ResultHit         = "hit"
	ResultCreated     = "created"
	ResultPassthrough = "passthrough"
	ResultError       = "error"
)

// Metrics holds every collector exported by the service.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	BytesServed         prometheus.Counter

	// Assets
	Uploads       prometheus.Counter
	DedupHits     prometheus.Counter
	AssetsDeleted prometheus.Counter

	// Variations
	VariationRequests *prometheus.CounterVec
	RenderDuration    prometheus.Histogram
	LinkRaces         prometheus.Counter

	// Cleanup
	CleanupRuns        prometheus.Counter
	CleanupDeleted     prometheus.Counter
	CleanupErrors      prometheus.Counter
	CleanupDuration    prometheus.Histogram
	CleanupLastRunTime prometheus.Gauge
}

// New registers all collectors with reg. Passing nil uses the default registry.
func New(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),
		BytesServed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "bytes_served_total",
			Help:      "Asset bytes streamed to clients",
		}),

		Uploads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "uploads_total",
			Help:      "Assets stored from uploads",
		}),
		DedupHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "dedup_hits_total",
			Help:      "Uploads answered with an existing identical asset",
		}),
		AssetsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "deleted_total",
			Help:      "Asset records deleted",
		}),

		VariationRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variations",
			Name:      "requests_total",
			Help:      "Variation lookups by outcome",
		}, []string{"result"}),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "variations",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a variation",
			Buckets:   prometheus.DefBuckets,
		}),
		LinkRaces: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variations",
			Name:      "link_races_total",
			Help:      "Variation links lost to a concurrent request",
		}),

		CleanupRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Unused-variation cleanup runs",
		}),
		CleanupDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "variations_deleted_total",
			Help:      "Variations removed by cleanup",
		}),
		CleanupErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "errors_total",
			Help:      "Variations cleanup failed to remove",
		}),
		CleanupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "duration_seconds",
			Help:      "Cleanup run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
		CleanupLastRunTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed cleanup run",
		}),
	}
}

// RecordCleanupRun records the outcome of one cleanup run.
func (m *Metrics) RecordCleanupRun(seconds float64, deleted, errors int) {
	m.CleanupRuns.Inc()
	m.CleanupDuration.Observe(seconds)
	m.CleanupDeleted.Add(float64(deleted))
	m.CleanupErrors.Add(float64(errors))
	m.CleanupLastRunTime.SetToCurrentTime()
}

// RecordVariation counts a variation request by outcome.
func (m *Metrics) RecordVariation(result string) {
	m.VariationRequests.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.BytesServed.Add(float64(ww.BytesWritten()))
	})
}
