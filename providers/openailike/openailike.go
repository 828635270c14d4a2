// Package openailike provides a base adapter for OpenAI-compatible
// endpoints. Most chat-completions APIs follow OpenAI's wire format with
// minor variations; this package is the shared foundation the openai and
// openrouter variants build on, and the fallback shape for unrecognized
// endpoints.
package openailike

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
)

// Info contains variant-specific configuration.
type Info struct {
	// Name is the variant identifier (e.g. "openai", "openrouter").
	Name string

	// APIKeyHeader is the header carrying the API key.
	// Default: "Authorization" with a "Bearer " prefix.
	APIKeyHeader string

	// APIKeyPrefix is the prefix for the API key value.
	APIKeyPrefix string

	// ExtraHeaders are sent verbatim on every request.
	ExtraHeaders map[string]string
}

// Adapter implements a generic OpenAI-compatible wire adapter bound to one
// model endpoint.
type Adapter struct {
	info Info
	cfg  provider.Config
}

// New creates an adapter for the given model configuration.
func New(info Info, cfg provider.Config) *Adapter {
	return &Adapter{info: info, cfg: cfg}
}

// NewFromConfig creates an adapter typed as the provider interface.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return New(Info{Name: "openai"}, cfg), nil
}

// Name returns the variant identifier.
func (a *Adapter) Name() string {
	return a.info.Name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// BuildRequest creates the chat-completions HTTP request.
func (a *Adapter) BuildRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	body, err := json.Marshal(chatRequest{
		Model:       a.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	apiKeyHeader := a.info.APIKeyHeader
	if apiKeyHeader == "" {
		apiKeyHeader = "Authorization"
	}
	apiKeyPrefix := a.info.APIKeyPrefix
	if apiKeyPrefix == "" && apiKeyHeader == "Authorization" {
		apiKeyPrefix = "Bearer "
	}
	httpReq.Header.Set(apiKeyHeader, apiKeyPrefix+a.cfg.APIKey)

	for k, v := range a.info.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts the first choice's text and total token usage.
func (a *Adapter) ParseResponse(resp *http.Response) (*provider.Result, error) {
	body, err := httputil.ReadLimitedBody(resp.Body, httputil.MaxCompletionBody)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, askerrors.NewParseError(a.info.Name, a.cfg.Model, "response body too large")
		}
		return nil, askerrors.NewConnectionError(a.info.Name, a.cfg.Model, "read response: "+err.Error())
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, askerrors.NewParseError(a.info.Name, a.cfg.Model, "malformed response body: "+err.Error())
	}

	if len(parsed.Choices) == 0 {
		return nil, askerrors.NewParseError(a.info.Name, a.cfg.Model, "no choices in response")
	}
	text := parsed.Choices[0].Message.Content
	if text == "" {
		return nil, askerrors.NewParseError(a.info.Name, a.cfg.Model, "empty completion text")
	}

	result := &provider.Result{Text: text, Raw: body}
	if parsed.Usage != nil {
		tokens := parsed.Usage.TotalTokens
		result.TokensUsed = &tokens
	}
	return result, nil
}

// MapError converts a non-2xx response using the OpenAI error envelope.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	return askerrors.FromStatusCode(a.info.Name, a.cfg.Model, statusCode, ErrorMessage(body))
}

// ErrorMessage pulls the human-readable message out of an OpenAI-style
// error envelope, falling back to a flat message field or the raw body.
func ErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	const maxDetail = 256
	if len(body) > maxDetail {
		body = body[:maxDetail]
	}
	return string(bytes.TrimSpace(body))
}
