package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all esdsl metrics
const (
	Namespace = "esdsl"
)

var durationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// MetricsCollector aggregates all metrics for an esdsl component
type MetricsCollector struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Search backend metrics
	SearchRequestsTotal   *prometheus.CounterVec
	SearchRequestDuration *prometheus.HistogramVec
	SearchHits            *prometheus.HistogramVec

	// Compilation metrics
	CompileTotal    *prometheus.CounterVec
	CompileDuration *prometheus.HistogramVec

	// Mapping cache metrics
	MappingCacheHits   prometheus.Counter
	MappingCacheMisses prometheus.Counter
}

// NewMetricsCollector creates a metrics collector for a component. The
// collectors are registered on reg; a nil reg leaves them unregistered.
func NewMetricsCollector(component string, reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Search backend metrics
		SearchRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "search_requests_total",
				Help:      "Total number of requests sent to the search engine",
			},
			[]string{"index", "operation", "status"},
		),
		SearchRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "search_request_duration_seconds",
				Help:      "Search engine request duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"index", "operation"},
		),
		SearchHits: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "search_hits",
				Help:      "Number of hits returned per search",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"index"},
		),

		// Compilation metrics
		CompileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "compile_total",
				Help:      "Total number of compilations",
			},
			[]string{"target", "status"},
		),
		CompileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "compile_duration_seconds",
				Help:      "Compilation duration in seconds",
				Buckets:   []float64{.00001, .0001, .001, .01, .1},
			},
			[]string{"target"},
		),

		// Mapping cache metrics
		MappingCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "mapping_cache_hits_total",
				Help:      "Total number of compiled mapping cache hits",
			},
		),
		MappingCacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "mapping_cache_misses_total",
				Help:      "Total number of compiled mapping cache misses",
			},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordSearchRequest records one request to the search engine. Status is
// the HTTP status, or 0 when the request failed before a response.
func (m *MetricsCollector) RecordSearchRequest(index, operation string, status int, duration time.Duration) {
	m.SearchRequestsTotal.WithLabelValues(index, operation, statusClass(status)).Inc()
	m.SearchRequestDuration.WithLabelValues(index, operation).Observe(duration.Seconds())
}

// RecordSearchHits records the number of hits of a search response
func (m *MetricsCollector) RecordSearchHits(index string, hits int) {
	m.SearchHits.WithLabelValues(index).Observe(float64(hits))
}

// RecordCompile records a compilation. Target is "search", "query" or "mapping".
func (m *MetricsCollector) RecordCompile(target string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CompileTotal.WithLabelValues(target, status).Inc()
	m.CompileDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordCacheHit records a mapping cache hit
func (m *MetricsCollector) RecordCacheHit() {
	m.MappingCacheHits.Inc()
}

// RecordCacheMiss records a mapping cache miss
func (m *MetricsCollector) RecordCacheMiss() {
	m.MappingCacheMisses.Inc()
}

// statusClass converts HTTP status code to status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}
