// Package metrics exposes Prometheus metrics for pipeline runs and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canectors/topapps/pkg/connector"
)

const namespace = "topapps"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	recordsSelected *prometheus.GaugeVec
	loadAttempts    *prometheus.CounterVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
// A nil reg gets a fresh registry with the process and Go collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			prometheus.NewGoCollector(),
		)
	}

	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by status and error code.",
			},
			[]string{"pipeline", "status", "code"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"pipeline"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of extract, transform and load stages.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"stage"},
		),
		recordsSelected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "records_selected",
				Help:      "Number of records in the last result set.",
			},
			[]string{"pipeline"},
		),
		loadAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "load_attempts_total",
				Help:      "Total number of load attempts, retries included.",
			},
			[]string{"pipeline"},
		),
		httpInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "inflight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.runs,
		m.runDuration,
		m.stageDuration,
		m.recordsSelected,
		m.loadAttempts,
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished run. It satisfies runtime.Observer.
func (m *Metrics) ObserveRun(result *connector.ExecutionResult) {
	if result == nil {
		return
	}
	code := ""
	if result.Error != nil {
		code = result.Error.Code
	}
	pipeline := result.PipelineID

	m.runs.WithLabelValues(pipeline, result.Status, code).Inc()
	if !result.StartedAt.IsZero() && !result.CompletedAt.IsZero() {
		m.runDuration.WithLabelValues(pipeline).Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())
	}
	observeStage(m.stageDuration, "extract", result.Timings.Extract)
	observeStage(m.stageDuration, "transform", result.Timings.Transform)
	observeStage(m.stageDuration, "load", result.Timings.Load)

	if result.Results != nil {
		m.recordsSelected.WithLabelValues(pipeline).Set(float64(result.RecordsProcessed))
	}
	if result.LoadAttempts > 0 {
		m.loadAttempts.WithLabelValues(pipeline).Add(float64(result.LoadAttempts))
	}
}

func observeStage(h *prometheus.HistogramVec, stage string, d time.Duration) {
	if d > 0 {
		h.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// CacheStats reports results cache usage for RegisterCache.
type CacheStats func() (hits, misses uint64, size int)

// RegisterCache exposes results cache counters read at scrape time.
func (m *Metrics) RegisterCache(stats CacheStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of results cache hits.",
		}, func() float64 { h, _, _ := stats(); return float64(h) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of results cache misses.",
		}, func() float64 { _, miss, _ := stats(); return float64(miss) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cached result sets.",
		}, func() float64 { _, _, size := stats(); return float64(size) }),
	)
}

// InstrumentHandler wraps next with HTTP metrics collection. Paths are
// labeled with the matched chi route pattern to bound cardinality.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routePattern(r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
