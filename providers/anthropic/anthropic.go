// Package anthropic provides the adapter for the Anthropic Messages API.
// API Reference: https://docs.anthropic.com/en/api/messages
package anthropic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/askmany/askmany/internal/httputil"
	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/provider"
	"github.com/askmany/askmany/providers/openailike"
)

const (
	// ProviderName is the identifier for this variant.
	ProviderName = "anthropic"

	// DefaultEndpoint is the standard Messages API URL.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"

	// APIVersion is the anthropic-version header value sent on every
	// request.
	APIVersion = "2023-06-01"
)

// Adapter implements the Anthropic Messages wire adapter bound to one
// model endpoint.
type Adapter struct {
	cfg provider.Config
}

// New creates a new Anthropic adapter for the given model configuration.
func New(cfg provider.Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// NewFromConfig creates an adapter typed as the provider interface.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return New(cfg), nil
}

// Name returns the variant identifier.
func (a *Adapter) Name() string {
	return ProviderName
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicRequest is the Messages API request format. Unlike the OpenAI
// shape, max_tokens is mandatory.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

// BuildRequest creates the Messages API HTTP request. Auth uses the
// x-api-key header plus the version header instead of a Bearer token.
func (a *Adapter) BuildRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       a.cfg.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts the first content block's text. Token usage is
// the sum of input and output tokens.
func (a *Adapter) ParseResponse(resp *http.Response) (*provider.Result, error) {
	body, err := httputil.ReadLimitedBody(resp.Body, httputil.MaxCompletionBody)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "response body too large")
		}
		return nil, askerrors.NewConnectionError(ProviderName, a.cfg.Model, "read response: "+err.Error())
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "malformed response body: "+err.Error())
	}

	if len(parsed.Content) == 0 {
		return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "no content in response")
	}
	text := parsed.Content[0].Text
	if text == "" {
		return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "empty completion text")
	}

	result := &provider.Result{Text: text, Raw: body}
	if parsed.Usage != nil {
		tokens := parsed.Usage.InputTokens + parsed.Usage.OutputTokens
		result.TokensUsed = &tokens
	}
	return result, nil
}

// MapError converts a non-2xx response. Anthropic uses the same nested
// error envelope as the OpenAI format.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	return askerrors.FromStatusCode(ProviderName, a.cfg.Model, statusCode, openailike.ErrorMessage(body))
}
