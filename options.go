package askmany

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/askmany/askmany/internal/cache"
)

// ProgressFunc receives per-model status updates during a fan-out. It is
// invoked at least twice per requested model: once before any work and
// once with the terminal result; retries add more. Callbacks fire from
// worker goroutines, so the function must be safe for concurrent use.
type ProgressFunc func(modelID int64, message string)

// dispatcherConfig holds all tunables for a Dispatcher instance.
type dispatcherConfig struct {
	maxConcurrent int
	timeout       time.Duration
	temperature   float64
	maxTokens     int
	retryCount    int
	retryBackoff  time.Duration
	referer       string
	title         string
	allowPrivate  bool

	logger     *slog.Logger
	httpClient *http.Client
	progress   ProgressFunc
	cache      *cache.OutcomeCache
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

func defaultDispatcherConfig() *dispatcherConfig {
	return &dispatcherConfig{
		maxConcurrent: 5,
		retryCount:    3,
		retryBackoff:  time.Second,
		logger:        slog.Default(),
	}
}

// Option configures a Dispatcher.
type Option func(*dispatcherConfig)

// WithMaxConcurrent bounds how many model requests run at once during a
// fan-out. Values below 1 are clamped to 1. Default: 5.
func WithMaxConcurrent(n int) Option {
	return func(c *dispatcherConfig) {
		c.maxConcurrent = n
	}
}

// WithTimeout sets the per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *dispatcherConfig) {
		c.timeout = d
	}
}

// WithTemperature sets the sampling temperature applied when a request
// does not carry its own. Default: 0.7.
func WithTemperature(t float64) Option {
	return func(c *dispatcherConfig) {
		c.temperature = t
	}
}

// WithMaxTokens sets the completion token ceiling applied when a request
// does not carry its own. Default: 2000, except OpenRouter models which
// default to 1000.
func WithMaxTokens(n int) Option {
	return func(c *dispatcherConfig) {
		c.maxTokens = n
	}
}

// WithRetry configures the rate-limit retry policy: how many retries
// follow the initial attempt and the starting backoff, which doubles per
// retry. Default: 3 retries starting at 1s (so 1s, 2s, 4s).
func WithRetry(count int, backoff time.Duration) Option {
	return func(c *dispatcherConfig) {
		c.retryCount = count
		c.retryBackoff = backoff
	}
}

// WithAttribution sets the HTTP-Referer and X-Title headers sent to
// OpenRouter endpoints.
func WithAttribution(referer, title string) Option {
	return func(c *dispatcherConfig) {
		c.referer = referer
		c.title = title
	}
}

// WithAllowPrivateEndpoints permits model endpoints that resolve to
// loopback or private address space. Intended for tests and self-hosted
// gateways.
func WithAllowPrivateEndpoints(allow bool) Option {
	return func(c *dispatcherConfig) {
		c.allowPrivate = allow
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *dispatcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient injects a shared HTTP client used for every provider
// call. When unset each model handle gets its own pooled client with the
// configured timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *dispatcherConfig) {
		c.httpClient = client
	}
}

// WithProgress registers the per-model progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *dispatcherConfig) {
		c.progress = fn
	}
}

// WithCache enables outcome caching: a hit synthesizes a successful
// outcome without touching the network, a miss stores the result on
// success.
func WithCache(oc *cache.OutcomeCache) Option {
	return func(c *dispatcherConfig) {
		c.cache = oc
	}
}

// WithRateLimit smooths outbound requests to at most rps per second with
// the given burst. Zero rps disables smoothing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *dispatcherConfig) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTracer enables OpenTelemetry spans around the fan-out and each
// model request.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *dispatcherConfig) {
		c.tracer = tracer
	}
}
