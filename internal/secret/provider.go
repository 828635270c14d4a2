package secret

import "context"

// Provider retrieves secrets from a single backing store.
type Provider interface {
	// Get retrieves the secret value at the given path. The scheme prefix
	// is already stripped by the time a path reaches a provider.
	Get(ctx context.Context, path string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}
