// Package secret resolves provider API keys from environment variables,
// HashiCorp Vault, or literal config values.
package secret

import (
	"context"
	"log/slog"
	"strings"
)

// Source maps provider short names ("openai", "anthropic") to API keys.
// Explicit references from configuration take priority; anything unmapped
// falls back to the conventional environment variable, so the short name
// "openai" resolves to OPENAI_API_KEY.
type Source struct {
	manager *Manager
	refs    map[string]string
	logger  *slog.Logger
}

// NewSource creates a Source over the manager. refs maps provider short
// names to secret references and may be nil.
func NewSource(manager *Manager, refs map[string]string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	normalized := make(map[string]string, len(refs))
	for name, ref := range refs {
		normalized[strings.ToLower(name)] = ref
	}
	return &Source{manager: manager, refs: normalized, logger: logger}
}

// Secret resolves the API key for a provider short name. It reports false
// when no secret is configured or the backing store fails; the cause is
// logged rather than surfaced, since callers treat every miss the same way.
func (s *Source) Secret(ctx context.Context, name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	ref, ok := s.refs[name]
	if !ok {
		ref = "env://" + EnvVarName(name)
	}

	val, err := s.manager.Get(ctx, ref)
	if err != nil {
		s.logger.Debug("secret lookup failed",
			"provider", name,
			"error", err,
		)
		return "", false
	}
	return val, val != ""
}

// EnvVarName returns the conventional environment variable for a provider
// short name: upper-cased with an _API_KEY suffix.
func EnvVarName(name string) string {
	return strings.ToUpper(name) + "_API_KEY"
}
