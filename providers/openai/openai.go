// Package openai provides the adapter for OpenAI chat-completions
// endpoints. It is also the shape unrecognized endpoints fall back to.
// API Reference: https://platform.openai.com/docs/api-reference/chat
package openai

import (
	"github.com/askmany/askmany/pkg/provider"
	"github.com/askmany/askmany/providers/openailike"
)

const (
	// ProviderName is the identifier for this variant.
	ProviderName = "openai"

	// DefaultEndpoint is the standard chat-completions URL.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
)

var providerInfo = openailike.Info{
	Name: ProviderName,
}

// Adapter wraps the OpenAI-like adapter for openai.com endpoints.
type Adapter struct {
	*openailike.Adapter
}

// New creates a new OpenAI adapter for the given model configuration.
func New(cfg provider.Config) *Adapter {
	return &Adapter{Adapter: openailike.New(providerInfo, cfg)}
}

// NewFromConfig creates an adapter typed as the provider interface.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return New(cfg), nil
}
