// Package cachetest holds the conformance suite every cache adapter runs.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/Hivemind/internal/port/cache"
)

// Run exercises the cache port contract against c. settle is called after
// writes for backends with asynchronous admission (ristretto's Wait); pass
// nil for synchronous backends.
func Run(t *testing.T, c cache.Cache, settle func()) {
	t.Helper()
	if settle == nil {
		settle = func() {}
	}
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "conform:set", []byte("v"), time.Minute); err != nil {
			t.Fatal(err)
		}
		settle()
		val, found, err := c.Get(ctx, "conform:set")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "v" {
			t.Fatalf("Get = (%q, %v), want (v, true)", val, found)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "conform:absent")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for absent key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "conform:del", []byte("v"), time.Minute)
		settle()
		if err := c.Delete(ctx, "conform:del"); err != nil {
			t.Fatal(err)
		}
		settle()
		if _, found, _ := c.Get(ctx, "conform:del"); found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteAbsent", func(t *testing.T) {
		if err := c.Delete(ctx, "conform:never"); err != nil {
			t.Fatalf("deleting an absent key: %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "conform:ow", []byte("v1"), time.Minute)
		settle()
		_ = c.Set(ctx, "conform:ow", []byte("v2"), time.Minute)
		settle()
		val, found, err := c.Get(ctx, "conform:ow")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "v2" {
			t.Fatalf("Get = (%q, %v), want (v2, true)", val, found)
		}
	})
}
