// Package monitoring - metrics.go provides operational metrics.
//
// DESIGN: Two views of the same events:
//   - In-memory atomic counters for the /stats JSON endpoint
//   - Prometheus collectors on a per-collector registry for /metrics
//
// Each MetricsCollector owns its registry, so several gateways (or tests)
// can live in one process without duplicate registration panics.
//
// Metrics:
//   - lingua_requests_total{path,status}
//   - lingua_fragments_total{kind}
//   - lingua_tokens_before_total / lingua_tokens_after_total
//   - lingua_compression_seconds
//   - lingua_engine_errors_total
package monitoring

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests     atomic.Int64
	successes    atomic.Int64
	compressions atomic.Int64
	engineErrors atomic.Int64

	registry           *prometheus.Registry
	requestsTotal      *prometheus.CounterVec
	fragmentsTotal     *prometheus.CounterVec
	tokensBeforeTotal  prometheus.Counter
	tokensAfterTotal   prometheus.Counter
	compressionSeconds prometheus.Histogram
	engineErrorsTotal  prometheus.Counter
}

// NewMetricsCollector creates a new metrics collector with its own registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingua_requests_total",
				Help: "Total number of HTTP requests handled by the gateway",
			},
			[]string{"path", "status"},
		),
		fragmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingua_fragments_total",
				Help: "Total number of compressed text fragments",
			},
			[]string{"kind"}, // "code" or "text"
		),
		tokensBeforeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_tokens_before_total",
			Help: "Engine-reported tokens of compressed fragments before compression",
		}),
		tokensAfterTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_tokens_after_total",
			Help: "Engine-reported tokens of compressed fragments after compression",
		}),
		compressionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingua_compression_seconds",
			Help:    "Time spent compressing one request",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		engineErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_engine_errors_total",
			Help: "Total number of compression engine failures",
		}),
	}
}

// RecordRequest records a handled request.
func (mc *MetricsCollector) RecordRequest(path string, status int, _ time.Duration) {
	mc.requests.Add(1)
	if status < 400 {
		mc.successes.Add(1)
	}
	mc.requestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// RecordFragment records one compressed fragment.
func (mc *MetricsCollector) RecordFragment(kind string) {
	mc.fragmentsTotal.WithLabelValues(kind).Inc()
}

// RecordCompression records a request whose body was compressed.
func (mc *MetricsCollector) RecordCompression(tokensBefore, tokensAfter int, duration time.Duration) {
	mc.compressions.Add(1)
	mc.tokensBeforeTotal.Add(float64(tokensBefore))
	mc.tokensAfterTotal.Add(float64(tokensAfter))
	mc.compressionSeconds.Observe(duration.Seconds())
}

// RecordEngineError records a compression engine failure.
func (mc *MetricsCollector) RecordEngineError() {
	mc.engineErrors.Add(1)
	mc.engineErrorsTotal.Inc()
}

// Stats returns current counters.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":      mc.requests.Load(),
		"successes":     mc.successes.Load(),
		"compressions":  mc.compressions.Load(),
		"engine_errors": mc.engineErrors.Load(),
	}
}

// Registry returns the Prometheus registry.
func (mc *MetricsCollector) Registry() *prometheus.Registry { return mc.registry }

// Handler serves the registry in the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
