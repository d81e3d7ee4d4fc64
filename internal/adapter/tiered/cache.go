// Package tiered composes an in-process L1 cache with a shared L2 cache.
package tiered

import (
	"context"
	"errors"
	"time"

	"github.com/Strob0t/Hivemind/internal/port/cache"
)

// Cache reads through L1 into L2 and writes to both. L1 is best effort:
// its errors degrade to misses so a broken local cache never masks L2.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New builds a tiered cache. l1Expire bounds how long entries backfilled
// from L2 stay in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, found, err := c.l1.Get(ctx, key); err == nil && found {
		return val, true, nil
	}

	val, found, err := c.l2.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = c.l1.Set(ctx, key, value, ttl)
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete clears L2 before L1 so a partial failure cannot leave a stale L2
// entry to be backfilled into a freshly cleared L1.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Join(c.l2.Delete(ctx, key), c.l1.Delete(ctx, key))
}
