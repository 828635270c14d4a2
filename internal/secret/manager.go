package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Manager routes secret references to registered providers by URI scheme.
// A reference like "vault://secret/data/llm#openai" goes to the "vault"
// provider, "env://OPENAI_API_KEY" to the "env" provider. A reference
// without a scheme is treated as a literal secret value.
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewManager creates an empty secret manager.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider for a scheme (e.g. "vault", "env").
func (m *Manager) Register(scheme string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[scheme] = provider
}

// Get resolves a secret reference.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	scheme, path, found := strings.Cut(ref, "://")
	if !found {
		return ref, nil
	}

	m.mu.RLock()
	provider, ok := m.providers[scheme]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("no secret provider registered for scheme: %s", scheme)
	}

	return provider.Get(ctx, path)
}

// Close closes every registered provider and joins their errors.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for scheme, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s provider: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}
