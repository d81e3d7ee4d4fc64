// Package ristretto provides the in-process L1 cache for hot work-item and
// decision-history reads, built on dgraph-io/ristretto.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a byte-value ristretto cache sized by total cost in bytes.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New builds a cache bounded at maxCostBytes of cached value data. Counter
// capacity is derived from the bound assuming entries around 100 bytes.
func New(maxCostBytes int64) (*Cache, error) {
	counters := maxCostBytes / 100 * 10
	if counters < 1024 {
		counters = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set costs the entry at its value length. Writes are admitted
// asynchronously, so a Set may be dropped under pressure.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been admitted or rejected.
func (c *Cache) Wait() {
	c.c.Wait()
}

func (c *Cache) Close() {
	c.c.Close()
}
