// Package metrics registers the Prometheus instrumentation for the wisdom
// pipeline and its HTTP surface.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for bodhi.
type Metrics struct {
	// Wisdom pipeline metrics
	WisdomRequests    *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	GenerationErrors  *prometheus.CounterVec
	GenerationTokens  *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Refresh metrics
	RefreshThrottled prometheus.Counter

	// Home snapshot metrics
	SnapshotsPublished prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// New creates and registers all metrics. Registration happens once per
// process; later calls return the shared instance.
func New() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			WisdomRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bodhi_wisdom_requests_total",
					Help: "Total wisdom requests by kind, outcome, and source",
				},
				[]string{"kind", "outcome", "source"}, // source: cache, generated, corpus
			),
			GenerationLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "bodhi_generation_duration_seconds",
					Help:    "Provider generation call duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to 51s
				},
				[]string{"provider", "kind"},
			),
			GenerationErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bodhi_generation_errors_total",
					Help: "Total generation failures by provider and error kind",
				},
				[]string{"provider", "error_kind"},
			),
			GenerationTokens: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bodhi_generation_tokens_total",
					Help: "Total tokens consumed by generations",
				},
				[]string{"provider", "type"}, // type: input, output
			),
			CacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "bodhi_cache_hits_total",
					Help: "Total number of wisdom cache hits",
				},
			),
			CacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "bodhi_cache_misses_total",
					Help: "Total number of wisdom cache misses",
				},
			),
			RefreshThrottled: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "bodhi_refresh_throttled_total",
					Help: "Total forced refreshes rejected by the cooldown",
				},
			),
			SnapshotsPublished: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "bodhi_home_snapshots_published_total",
					Help: "Total home snapshots published to subscribers",
				},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bodhi_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "bodhi_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})

	return sharedMetrics
}

// RecordWisdomRequest records one resolved wisdom request.
func (m *Metrics) RecordWisdomRequest(kind, outcome, source string) {
	m.WisdomRequests.WithLabelValues(kind, outcome, source).Inc()
}

// RecordGeneration records a successful provider call.
func (m *Metrics) RecordGeneration(provider, kind string, seconds float64, inputTokens, outputTokens int) {
	m.GenerationLatency.WithLabelValues(provider, kind).Observe(seconds)
	if inputTokens > 0 {
		m.GenerationTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.GenerationTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// RecordGenerationError records a failed provider call.
func (m *Metrics) RecordGenerationError(provider, errorKind string) {
	m.GenerationErrors.WithLabelValues(provider, errorKind).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
