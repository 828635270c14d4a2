package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/askmany/askmany/pkg/types"
)

// OutcomeCache is the typed layer the dispatcher talks to. It serializes
// outcomes, generates keys, and only ever stores successes: a failed
// outcome describes a transient condition and must not be replayed.
type OutcomeCache struct {
	cache Cache
	keys  *KeyGenerator
	ttl   time.Duration
}

// NewOutcomeCache wraps a backend. A nil backend disables the cache and
// every method becomes a no-op.
func NewOutcomeCache(cache Cache, namespace string, ttl time.Duration) *OutcomeCache {
	return &OutcomeCache{
		cache: cache,
		keys:  NewKeyGenerator(namespace),
		ttl:   ttl,
	}
}

// Enabled reports whether a backend is attached.
func (c *OutcomeCache) Enabled() bool {
	return c != nil && c.cache != nil
}

// Lookup returns a previously stored outcome for the same model, prompt
// and sampling parameters. Decode failures and backend errors read as
// misses.
func (c *OutcomeCache) Lookup(ctx context.Context, model, prompt string, temperature float64, maxTokens int) (*types.RequestOutcome, bool) {
	if !c.Enabled() {
		return nil, false
	}

	data, err := c.cache.Get(ctx, c.keys.Generate(model, prompt, temperature, maxTokens))
	if err != nil || data == nil {
		return nil, false
	}

	var outcome types.RequestOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, false
	}
	return &outcome, true
}

// Store caches a successful outcome. Failures are dropped silently.
func (c *OutcomeCache) Store(ctx context.Context, prompt string, temperature float64, maxTokens int, outcome types.RequestOutcome) error {
	if !c.Enabled() || !outcome.Succeeded {
		return nil
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, c.keys.Generate(outcome.ModelName, prompt, temperature, maxTokens), data, c.ttl)
}

// Stats exposes the backend counters.
func (c *OutcomeCache) Stats() Stats {
	if !c.Enabled() {
		return Stats{}
	}
	return c.cache.Stats()
}

// Close closes the backend.
func (c *OutcomeCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.cache.Close()
}
