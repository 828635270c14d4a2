package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/askmany/askmany/pkg/types"
	"github.com/askmany/askmany/providers"
)

// defaultModels is the starter catalog. Direct provider entries plus a few
// OpenRouter-hosted ones so a fresh install can fan out with a single key.
var defaultModels = []types.Model{
	{Name: "OpenAI GPT-4", APIEndpoint: "https://api.openai.com/v1/chat/completions", CredentialKey: "OPENAI_API_KEY"},
	{Name: "Anthropic Claude 3", APIEndpoint: "https://api.anthropic.com/v1/messages", CredentialKey: "ANTHROPIC_API_KEY"},
	{Name: "Google Gemini", APIEndpoint: "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent", CredentialKey: "GOOGLE_API_KEY"},
	{Name: "meta-llama/llama-3.2-3b-instruct:free", APIEndpoint: "https://openrouter.ai/api/v1/chat/completions", CredentialKey: "OPENROUTER_API_KEY"},
	{Name: "openai/gpt-4o-mini", APIEndpoint: "https://openrouter.ai/api/v1/chat/completions", CredentialKey: "OPENROUTER_API_KEY"},
	{Name: "anthropic/claude-3.5-haiku", APIEndpoint: "https://openrouter.ai/api/v1/chat/completions", CredentialKey: "OPENROUTER_API_KEY"},
	{Name: "google/gemini-2.0-flash-001", APIEndpoint: "https://openrouter.ai/api/v1/chat/completions", CredentialKey: "OPENROUTER_API_KEY"},
}

// SeedDefaults inserts the starter models that are not present yet. Each
// model starts active only when its credential resolves, so fan-outs on a
// fresh install skip providers that have no key.
func SeedDefaults(ctx context.Context, s Store, secrets providers.SecretSource, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, m := range defaultModels {
		existing, err := s.GetModelByName(ctx, m.Name)
		if err != nil {
			return fmt.Errorf("check model %q: %w", m.Name, err)
		}
		if existing != nil {
			continue
		}

		_, hasKey := secrets.Secret(ctx, types.ProviderShortName(m.CredentialKey))
		m.IsActive = hasKey

		if err := s.CreateModel(ctx, &m); err != nil {
			return fmt.Errorf("seed model %q: %w", m.Name, err)
		}
		logger.Info("seeded model", "name", m.Name, "active", m.IsActive)
	}
	return nil
}
