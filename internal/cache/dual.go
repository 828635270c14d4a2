package cache

import (
	"context"
	"errors"
	"time"
)

// DualCache layers an in-memory cache (L1) over Redis (L2). Reads check
// L1 first and backfill it on an L2 hit; writes and deletes go to both
// tiers. The local TTL is kept short so tiers cannot drift far apart.
type DualCache struct {
	local    *MemoryCache
	redis    *RedisCache
	localTTL time.Duration
}

// NewDualCache combines the two tiers.
func NewDualCache(local *MemoryCache, redis *RedisCache, localTTL time.Duration) *DualCache {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &DualCache{
		local:    local,
		redis:    redis,
		localTTL: localTTL,
	}
}

func (c *DualCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := c.local.Get(ctx, key); err == nil && val != nil {
		return val, nil
	}

	val, err := c.redis.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}

	// Backfill is best-effort.
	_ = c.local.Set(ctx, key, val, c.localTTL)
	return val, nil
}

func (c *DualCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, c.localTTL); err != nil {
		return err
	}
	return c.redis.Set(ctx, key, value, ttl)
}

func (c *DualCache) Delete(ctx context.Context, key string) error {
	localErr := c.local.Delete(ctx, key)
	redisErr := c.redis.Delete(ctx, key)
	return errors.Join(localErr, redisErr)
}

func (c *DualCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx)
}

func (c *DualCache) Close() error {
	return errors.Join(c.local.Close(), c.redis.Close())
}

// Stats merges both tiers. A request served by L1 counts once.
func (c *DualCache) Stats() Stats {
	l, r := c.local.Stats(), c.redis.Stats()
	return computeStats(l.Hits+r.Hits, r.Misses, r.Sets)
}
