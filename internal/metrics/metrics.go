// Package metrics provides Prometheus metrics for fan-out dispatch. It
// tracks dispatch runs, per-model request counts, latencies, token usage,
// retries and cache effectiveness.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "askmany"

// maxModelLabelLen caps model label length to keep cardinality sane.
const maxModelLabelLen = 100

// =============================================================================
// Dispatch Metrics
// =============================================================================

var (
	// DispatchesTotal counts fan-out dispatches.
	DispatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of fan-out dispatches",
		},
	)

	// DispatchDuration tracks end-to-end dispatch duration.
	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "End-to-end dispatch duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// DispatchModels tracks how many models each dispatch fans out to.
	DispatchModels = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_models",
			Help:      "Number of models per dispatch",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	// InFlightRequests tracks currently running model requests.
	InFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_requests",
			Help:      "Model requests currently in flight",
		},
	)

	// ConcurrencyLimit reports the configured fan-out concurrency cap.
	ConcurrencyLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_concurrency_limit",
			Help:      "Configured maximum concurrent model requests per dispatch",
		},
	)
)

// =============================================================================
// Per-Model Request Metrics
// =============================================================================

var (
	// RequestsTotal counts model requests by provider, model and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of model requests",
		},
		[]string{"provider", "model", "status"},
	)

	// RequestLatency tracks model request latency distribution.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Model request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	// TokenUsage counts tokens reported by providers.
	TokenUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_usage_total",
			Help:      "Total token usage reported by providers",
		},
		[]string{"provider", "model"},
	)

	// UpstreamErrors counts errors by provider and type.
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total upstream errors by type",
		},
		[]string{"provider", "error_type"},
	)

	// RetriesTotal counts retry attempts by provider and reason.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total retry attempts",
		},
		[]string{"provider", "reason"},
	)
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHits counts outcome cache hits.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total outcome cache hits",
		},
		[]string{"model"},
	)

	// CacheMisses counts outcome cache misses.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total outcome cache misses",
		},
		[]string{"model"},
	)
)

// RecordRequest records metrics for one completed model request.
func RecordRequest(provider, model string, statusCode int, latency time.Duration) {
	status := strconv.Itoa(statusCode)
	model = sanitizeModelLabel(model)
	RequestsTotal.WithLabelValues(provider, model, status).Inc()
	RequestLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordTokens records reported token usage.
func RecordTokens(provider, model string, tokens int) {
	if tokens <= 0 {
		return
	}
	TokenUsage.WithLabelValues(provider, sanitizeModelLabel(model)).Add(float64(tokens))
}

// RecordError records an upstream error.
func RecordError(provider, errorType string) {
	UpstreamErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordRetry records a retry attempt.
func RecordRetry(provider, reason string) {
	RetriesTotal.WithLabelValues(provider, reason).Inc()
}

// SetConcurrencyLimit publishes the dispatcher's concurrency cap.
func SetConcurrencyLimit(n int) {
	ConcurrencyLimit.Set(float64(n))
}

// RecordDispatch records a completed dispatch.
func RecordDispatch(models int, duration time.Duration) {
	DispatchesTotal.Inc()
	DispatchModels.Observe(float64(models))
	DispatchDuration.Observe(duration.Seconds())
}

// RecordCacheHit records an outcome cache hit for a model.
func RecordCacheHit(model string) {
	CacheHits.WithLabelValues(sanitizeModelLabel(model)).Inc()
}

// RecordCacheMiss records an outcome cache miss for a model.
func RecordCacheMiss(model string) {
	CacheMisses.WithLabelValues(sanitizeModelLabel(model)).Inc()
}

// sanitizeModelLabel normalizes a model name for use as a label value:
// provider prefixes are stripped, control characters replaced, length
// capped, and blank input mapped to "unknown".
func sanitizeModelLabel(model string) string {
	if idx := strings.LastIndex(model, "/"); idx != -1 {
		model = model[idx+1:]
	}

	model = strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '_'
		}
		return r
	}, model)

	if len(model) > maxModelLabelLen {
		model = model[:maxModelLabelLen]
	}
	if strings.TrimSpace(model) == "" {
		return "unknown"
	}
	return model
}
