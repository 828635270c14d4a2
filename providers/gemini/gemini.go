// Package gemini provides the adapter for the Google generateContent API.
// It differs from the chat-completions variants in both payload shape
// (contents/parts) and auth (API key as a URL query parameter).
// API Reference: https://ai.google.dev/api/generate-content
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/askmany/askmany/internal/httputil"
	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/provider"
	"github.com/askmany/askmany/providers/openailike"
)

const (
	// ProviderName is the identifier for this variant.
	ProviderName = "gemini"

	// DefaultEndpoint is the generateContent URL for the default model.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"
)

// Adapter implements the generateContent wire adapter bound to one model
// endpoint.
type Adapter struct {
	cfg provider.Config
}

// New creates a new Gemini adapter for the given model configuration.
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

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

// endpointWithKey appends the API key as a query parameter, honoring any
// query string the endpoint already carries.
func (a *Adapter) endpointWithKey() string {
	if a.cfg.APIKey == "" {
		return a.cfg.Endpoint
	}
	separator := "?"
	if strings.Contains(a.cfg.Endpoint, "?") {
		separator = "&"
	}
	return a.cfg.Endpoint + separator + "key=" + a.cfg.APIKey
}

// BuildRequest creates the generateContent HTTP request.
func (a *Adapter) BuildRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointWithKey(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// ParseResponse extracts the first candidate's first part.
func (a *Adapter) ParseResponse(resp *http.Response) (*provider.Result, error) {
	body, err := httputil.ReadLimitedBody(resp.Body, httputil.MaxCompletionBody)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "response body too large")
		}
		return nil, askerrors.NewConnectionError(ProviderName, a.cfg.Model, "read response: "+err.Error())
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "malformed response body: "+err.Error())
	}

	if len(parsed.Candidates) == 0 {
		return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "no candidates in response")
	}
	parts := parsed.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "no parts in response")
	}
	text := parts[0].Text
	if text == "" {
		return nil, askerrors.NewParseError(ProviderName, a.cfg.Model, "empty completion text")
	}

	result := &provider.Result{Text: text, Raw: body}
	if parsed.UsageMetadata != nil {
		tokens := parsed.UsageMetadata.TotalTokenCount
		result.TokensUsed = &tokens
	}
	return result, nil
}

// MapError converts a non-2xx response. Google nests the message under
// the same error envelope shape as the OpenAI format.
func (a *Adapter) MapError(statusCode int, body []byte) error {
	return askerrors.FromStatusCode(ProviderName, a.cfg.Model, statusCode, openailike.ErrorMessage(body))
}
