// Package openrouter provides the adapter for OpenRouter, a unified
// gateway to many upstream models. The wire format is OpenAI-compatible
// with attribution headers and a richer 402 error payload that hints how
// many tokens the account can still afford.
// API Reference: https://openrouter.ai/docs
package openrouter

import (
	"net/http"
	"regexp"
	"strconv"

	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/provider"
	"github.com/askmany/askmany/providers/openailike"
)

const (
	// ProviderName is the identifier for this variant.
	ProviderName = "openrouter"

	// DefaultEndpoint is the standard OpenRouter chat-completions URL.
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	// DefaultMaxTokens is lower than the other variants for free-tier
	// compatibility.
	DefaultMaxTokens = 1000

	// DefaultReferer and DefaultTitle are the attribution headers
	// OpenRouter recommends on every request.
	DefaultReferer = "https://github.com/askmany/askmany"
	DefaultTitle   = "askmany"

	// MinRetryTokens is the floor for a reduced-budget resubmit, and
	// TokenSafetyMargin how far below the hinted ceiling to stay.
	MinRetryTokens    = 100
	TokenSafetyMargin = 50
)

// affordPattern matches the token hint in OpenRouter 402 messages, e.g.
// "... can only afford 732". The message format is an observed heuristic,
// not a documented contract.
var affordPattern = regexp.MustCompile(`can only afford (\d+)`)

// Adapter wraps the OpenAI-like adapter with OpenRouter attribution
// headers and the 402 budget-hint behavior.
type Adapter struct {
	*openailike.Adapter
}

// New creates a new OpenRouter adapter for the given model configuration.
// Referer and title can be overridden through cfg.Headers.
func New(cfg provider.Config) *Adapter {
	info := openailike.Info{
		Name: ProviderName,
		ExtraHeaders: map[string]string{
			"HTTP-Referer": DefaultReferer,
			"X-Title":      DefaultTitle,
		},
	}
	return &Adapter{Adapter: openailike.New(info, cfg)}
}

// NewFromConfig creates an adapter typed as the provider interface.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return New(cfg), nil
}

// RetryBudget implements provider.BudgetHinter. For a payment-required
// error carrying an affordable-token hint it returns the max_tokens to
// resubmit with: the hinted ceiling minus a safety margin, floored at
// MinRetryTokens.
func (a *Adapter) RetryBudget(err error) (int, bool) {
	de, ok := askerrors.From(err)
	if !ok || de.StatusCode != http.StatusPaymentRequired {
		return 0, false
	}

	m := affordPattern.FindStringSubmatch(de.Message)
	if m == nil {
		return 0, false
	}
	affordable, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, false
	}

	return max(MinRetryTokens, affordable-TokenSafetyMargin), true
}
