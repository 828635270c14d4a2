package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultMemoryTTL applies when no TTL is configured.
const DefaultMemoryTTL = 10 * time.Minute

// MemoryCache is the in-memory backend.
type MemoryCache struct {
	data *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewMemoryCache creates an in-memory cache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultMemoryTTL
	}
	return &MemoryCache{
		data: gocache.New(defaultTTL, defaultTTL*2),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	val, found := c.data.Get(key)
	if !found {
		c.misses.Add(1)
		return nil, nil
	}
	data, ok := val.([]byte)
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return data, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.data.Set(key, value, ttl)
	c.sets.Add(1)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.data.Delete(key)
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error {
	c.data.Flush()
	return nil
}

func (c *MemoryCache) Stats() Stats {
	return computeStats(c.hits.Load(), c.misses.Load(), c.sets.Load())
}

func computeStats(hits, misses, sets int64) Stats {
	s := Stats{Hits: hits, Misses: misses, Sets: sets}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
