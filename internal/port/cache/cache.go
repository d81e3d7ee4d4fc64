// Package cache defines the key-value caching port used by the read-through
// store decorator. Implementations back it with process memory (ristretto),
// NATS JetStream KV, or a tiered combination of both.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys with a per-entry TTL.
type Cache interface {
	// Get returns the cached value and true on a hit. A miss is
	// (nil, false, nil); the error is reserved for backend failures.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl means the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
