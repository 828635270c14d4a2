// Package providers provides a unified registry for all askmany provider
// adapters and the model-to-client resolution used by the dispatcher.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/provider"
	"github.com/askmany/askmany/pkg/types"
	"github.com/askmany/askmany/providers/anthropic"
	"github.com/askmany/askmany/providers/gemini"
	"github.com/askmany/askmany/providers/openai"
	"github.com/askmany/askmany/providers/openrouter"
)

var (
	registry     = make(map[string]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers an adapter factory with the given variant name.
func Register(variant string, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[variant] = factory
}

// Get returns the factory for the given variant name.
func Get(variant string) (provider.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[variant]
	return f, ok
}

// Create creates an adapter instance for the given variant.
func Create(variant string, cfg provider.Config) (provider.Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[variant]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider variant: %s (available: %v)", variant, List())
	}

	return factory(cfg)
}

// List returns all registered variant names.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins registers all built-in adapter factories.
// This is called automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register(openai.ProviderName, openai.NewFromConfig)
		Register(anthropic.ProviderName, anthropic.NewFromConfig)
		Register(gemini.ProviderName, gemini.NewFromConfig)
		Register(openrouter.ProviderName, openrouter.NewFromConfig)
	})
}

func init() {
	RegisterBuiltins()
}

// MatchVariant picks the adapter variant for a model from its endpoint and
// name. Checks run in a fixed order and the first match wins, so a model
// named "gpt-proxy" resolves to the OpenAI variant even on a foreign
// endpoint. The second return is false when nothing matched and the
// OpenAI-compatible fallback was assumed.
func MatchVariant(endpoint, modelName string) (string, bool) {
	url := strings.ToLower(endpoint)
	name := strings.ToLower(modelName)

	switch {
	case strings.Contains(url, "openai.com") || strings.Contains(name, "gpt"):
		return openai.ProviderName, true
	case strings.Contains(url, "anthropic.com") || strings.Contains(name, "claude"):
		return anthropic.ProviderName, true
	case strings.Contains(url, "openrouter.ai") || strings.Contains(name, "openrouter"):
		return openrouter.ProviderName, true
	case strings.Contains(url, "googleapis.com") || strings.Contains(name, "gemini"):
		return gemini.ProviderName, true
	default:
		return openai.ProviderName, false
	}
}

// SecretSource resolves provider short names to API keys. Implementations
// return false when no secret is configured for the name.
type SecretSource interface {
	Secret(ctx context.Context, providerShortName string) (string, bool)
}

// Options tune client construction. Zero values fall back to the package
// defaults in pkg/provider.
type Options struct {
	Timeout               time.Duration
	Temperature           float64
	MaxTokens             int
	Referer               string
	Title                 string
	AllowPrivateEndpoints bool
	Logger                *slog.Logger
	HTTPClient            *http.Client
}

// CreateForModel resolves a model row into a ready request client: it
// derives the provider short name from the credential key, fetches the API
// key, picks the adapter variant and wires the whole thing into a
// provider.Client. The credential lookup happens before variant matching,
// so a model with no secret fails with MissingCredential regardless of its
// endpoint.
func CreateForModel(ctx context.Context, model types.Model, secrets SecretSource, opts Options) (*provider.Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shortName := types.ProviderShortName(model.CredentialKey)
	apiKey, ok := secrets.Secret(ctx, shortName)
	if !ok || apiKey == "" {
		return nil, askerrors.NewMissingCredentialError(shortName, model.Name)
	}

	variant, exact := MatchVariant(model.APIEndpoint, model.Name)
	if !exact {
		logger.Warn("no provider variant matched, assuming an OpenAI-compatible endpoint",
			"model", model.Name,
			"endpoint", model.APIEndpoint,
		)
	}

	if err := provider.ValidateEndpoint(model.APIEndpoint, opts.AllowPrivateEndpoints); err != nil {
		return nil, askerrors.NewClientConstructionError(variant, model.Name, err.Error())
	}

	cfg := provider.Config{
		ModelID:     model.ID,
		Model:       model.Name,
		Endpoint:    model.APIEndpoint,
		APIKey:      apiKey,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Timeout:     opts.Timeout,
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = provider.DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		if variant == openrouter.ProviderName {
			cfg.MaxTokens = openrouter.DefaultMaxTokens
		} else {
			cfg.MaxTokens = provider.DefaultMaxTokens
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = provider.DefaultTimeout
	}
	if variant == openrouter.ProviderName && (opts.Referer != "" || opts.Title != "") {
		cfg.Headers = make(map[string]string, 2)
		if opts.Referer != "" {
			cfg.Headers["HTTP-Referer"] = opts.Referer
		}
		if opts.Title != "" {
			cfg.Headers["X-Title"] = opts.Title
		}
	}

	adapter, err := Create(variant, cfg)
	if err != nil {
		return nil, askerrors.NewClientConstructionError(variant, model.Name, err.Error())
	}

	return provider.NewClient(adapter, cfg, opts.HTTPClient), nil
}
