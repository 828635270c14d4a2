// Package cache provides optional caching of dispatch outcomes. It
// supports an in-memory backend, Redis, and a two-tier combination of
// both.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Type selects the cache backend.
type Type string

const (
	TypeLocal Type = "local" // in-memory only
	TypeRedis Type = "redis" // Redis only
	TypeDual  Type = "dual"  // in-memory L1 + Redis L2
)

// Stats holds cache counters for monitoring.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is the backend interface. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Config holds the cache configuration.
type Config struct {
	Type      Type          `yaml:"type" env:"CACHE_TYPE"`
	Enabled   bool          `yaml:"enabled" env:"CACHE_ENABLED"`
	Namespace string        `yaml:"namespace" env:"CACHE_NAMESPACE"`
	TTL       time.Duration `yaml:"ttl" env:"CACHE_TTL"`
	LocalTTL  time.Duration `yaml:"local_ttl" env:"CACHE_LOCAL_TTL"`
	RedisURL  string        `yaml:"redis_url" env:"CACHE_REDIS_URL"`
}

// DefaultConfig returns sensible defaults. Caching starts disabled.
func DefaultConfig() Config {
	return Config{
		Type:      TypeLocal,
		Enabled:   false,
		Namespace: "askmany",
		TTL:       time.Hour,
		LocalTTL:  5 * time.Minute,
	}
}

// New creates a cache from configuration. A disabled config yields
// (nil, nil) and callers treat a nil cache as a no-op.
func New(cfg Config) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Type {
	case TypeLocal, "":
		return NewMemoryCache(cfg.TTL), nil

	case TypeRedis:
		return NewRedisCache(RedisConfig{
			URL:        cfg.RedisURL,
			Namespace:  cfg.Namespace,
			DefaultTTL: cfg.TTL,
		})

	case TypeDual:
		redis, err := NewRedisCache(RedisConfig{
			URL:        cfg.RedisURL,
			Namespace:  cfg.Namespace,
			DefaultTTL: cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis tier: %w", err)
		}
		return NewDualCache(NewMemoryCache(cfg.LocalTTL), redis, cfg.LocalTTL), nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
