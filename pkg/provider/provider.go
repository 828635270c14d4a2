// Package provider defines the interface for upstream model adapters.
// Each variant (OpenAI-compatible, Anthropic, Gemini, OpenRouter) implements
// the wire translation; the dispatcher owns retry and scheduling policy.
package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/askmany/askmany/internal/httputil"
	askerrors "github.com/askmany/askmany/pkg/errors"
)

// Adapter translates prompts to provider-specific HTTP requests and
// provider-specific responses back to normalized results. Adapters are
// bound to one model endpoint at construction and hold no mutable state.
type Adapter interface {
	// Name returns the variant identifier (e.g. "openai", "anthropic").
	Name() string

	// BuildRequest turns a resolved request into a provider-specific HTTP
	// request: payload shape, auth placement, and extra headers.
	BuildRequest(ctx context.Context, req *Request) (*http.Request, error)

	// ParseResponse extracts the completion text and token usage from a
	// 2xx provider response. A missing completion field is a parse error.
	ParseResponse(resp *http.Response) (*Result, error)

	// MapError converts a non-2xx provider response into a DispatchError.
	MapError(statusCode int, body []byte) error
}

// BudgetHinter is implemented by adapters that can derive a reduced token
// budget from a payment-required error, enabling one resubmit.
type BudgetHinter interface {
	// RetryBudget returns the max_tokens value to resubmit with, derived
	// from the error's affordable-token hint, and whether a hint was found.
	RetryBudget(err error) (int, bool)
}

// Request carries one prompt with fully resolved sampling parameters.
// Defaults have already been applied by the time an adapter sees it.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Result is the normalized payload of a successful provider call.
type Result struct {
	Text       string
	TokensUsed *int
	Raw        []byte
}

// Config contains everything needed to construct an adapter for one model.
type Config struct {
	ModelID  int64
	Model    string
	Endpoint string
	APIKey   string

	// Defaults applied when a request leaves the field unset.
	Temperature float64
	MaxTokens   int

	Timeout time.Duration

	// Headers are sent verbatim on every request (e.g. OpenRouter
	// attribution headers).
	Headers map[string]string
}

// Factory creates adapter instances from configuration.
type Factory func(cfg Config) (Adapter, error)

// Default sampling parameters shared by all variants.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 30 * time.Second
)

// Client couples an adapter with the HTTP connection pool bound to one
// model endpoint. It is the per-model handle the dispatcher caches between
// fan-outs and closes on teardown.
type Client struct {
	adapter Adapter
	cfg     Config
	http    *http.Client
	closed  atomic.Bool
}

// NewClient builds a handle around an adapter. When httpClient is nil a
// dedicated pooled client with the configured timeout is created.
func NewClient(adapter Adapter, cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{adapter: adapter, cfg: cfg, http: httpClient}
}

// Adapter returns the wire adapter bound to this handle.
func (c *Client) Adapter() Adapter { return c.adapter }

// Config returns the construction configuration, including the per-variant
// sampling defaults.
func (c *Client) Config() Config { return c.cfg }

// Do performs exactly one HTTP round trip: build, send, then parse or map
// the error. Retry policy belongs to the caller.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	if c.closed.Load() {
		return nil, askerrors.NewConnectionError(c.adapter.Name(), c.cfg.Model, "client is closed")
	}

	httpReq, err := c.adapter.BuildRequest(ctx, req)
	if err != nil {
		return nil, askerrors.NewClientConstructionError(c.adapter.Name(), c.cfg.Model, "build request: "+err.Error())
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Error envelopes are small; cap the read and ignore truncation.
		body, _ := httputil.ReadLimitedBody(resp.Body, 1<<20)
		return nil, c.adapter.MapError(resp.StatusCode, body)
	}

	return c.adapter.ParseResponse(resp)
}

// Close releases the handle's idle connections. It is idempotent; Do after
// Close fails with a connection error rather than panicking.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.http.CloseIdleConnections()
	return nil
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed.Load() }

func (c *Client) classifyTransportError(ctx context.Context, err error) error {
	name, model := c.adapter.Name(), c.cfg.Model

	if ctx.Err() == context.Canceled || errors.Is(err, context.Canceled) {
		return askerrors.NewCancelledError(name, model)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return askerrors.NewTimeoutError(name, model, c.cfg.Timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return askerrors.NewTimeoutError(name, model, c.cfg.Timeout)
	}
	return askerrors.NewConnectionError(name, model, "connection failed: "+err.Error())
}
