package storecache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/Hivemind/internal/adapter/memstore"
	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/store"
)

// mapCache is a minimal cache.Cache for tests, without eviction.
type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

// countingStore counts GetWorkItem hits against the inner store.
type countingStore struct {
	store.Store
	gets atomic.Int64
}

func (s *countingStore) GetWorkItem(ctx context.Context, id string) (*workitem.WorkItem, error) {
	s.gets.Add(1)
	return s.Store.GetWorkItem(ctx, id)
}

func TestGetWorkItemReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: memstore.New()}
	cached := New(inner, newMapCache(), time.Minute)

	item := &workitem.WorkItem{ID: "a", Kind: workitem.KindTask, Title: "x"}
	item.Status = workitem.StatusPending
	if err := cached.InsertWorkItem(ctx, item); err != nil {
		t.Fatalf("InsertWorkItem error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := cached.GetWorkItem(ctx, "a"); err != nil {
			t.Fatalf("GetWorkItem error: %v", err)
		}
	}
	if got := inner.gets.Load(); got != 1 {
		t.Fatalf("inner gets = %d, want 1 (cache hit after first read)", got)
	}
}

func TestSwapStatusInvalidates(t *testing.T) {
	ctx := context.Background()
	cached := New(memstore.New(), newMapCache(), time.Minute)

	item := &workitem.WorkItem{ID: "a", Kind: workitem.KindTask, Title: "x", Status: workitem.StatusPending}
	if err := cached.InsertWorkItem(ctx, item); err != nil {
		t.Fatalf("InsertWorkItem error: %v", err)
	}
	if _, err := cached.GetWorkItem(ctx, "a"); err != nil {
		t.Fatalf("GetWorkItem error: %v", err)
	}

	if _, err := cached.SwapStatus(ctx, "a", workitem.StatusPending, workitem.StatusRouted, workitem.StatusUpdate{}); err != nil {
		t.Fatalf("SwapStatus error: %v", err)
	}

	got, err := cached.GetWorkItem(ctx, "a")
	if err != nil {
		t.Fatalf("GetWorkItem error: %v", err)
	}
	if got.Status != workitem.StatusRouted {
		t.Fatalf("status after swap = %s, want routed (stale cache)", got.Status)
	}
}

func TestInsertDecisionInvalidatesHistory(t *testing.T) {
	ctx := context.Background()
	cached := New(memstore.New(), newMapCache(), time.Minute)

	item := &workitem.WorkItem{ID: "a", Kind: workitem.KindTask, Title: "x", Status: workitem.StatusPending}
	if err := cached.InsertWorkItem(ctx, item); err != nil {
		t.Fatalf("InsertWorkItem error: %v", err)
	}

	if _, err := cached.ListDecisionsByWorkItem(ctx, "a"); err != nil {
		t.Fatalf("ListDecisionsByWorkItem error: %v", err)
	}

	d := &decision.Decision{ID: "d1", WorkItemID: "a", Outcome: "approve", CreatedAt: time.Now()}
	if err := cached.InsertDecision(ctx, d); err != nil {
		t.Fatalf("InsertDecision error: %v", err)
	}

	history, err := cached.ListDecisionsByWorkItem(ctx, "a")
	if err != nil {
		t.Fatalf("ListDecisionsByWorkItem error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1 after invalidation", len(history))
	}
}
