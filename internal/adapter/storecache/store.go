// Package storecache decorates a store.Store with read-through caching for
// the hot read paths: single work item lookups and per-item decision history.
// Writes invalidate eagerly, so a cached entry is never older than the last
// local mutation; cross-instance staleness is bounded by the entry TTL.
package storecache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/cache"
	"github.com/Strob0t/Hivemind/internal/port/store"
)

// Store wraps an inner store.Store with a cache.
type Store struct {
	inner store.Store
	cache cache.Cache
	ttl   time.Duration
}

// New creates a caching decorator around inner.
func New(inner store.Store, c cache.Cache, ttl time.Duration) *Store {
	return &Store{inner: inner, cache: c, ttl: ttl}
}

func itemKey(id string) string      { return "workitem:" + id }
func decisionsKey(id string) string { return "decisions:" + id }

// --- Work items ---

func (s *Store) InsertWorkItem(ctx context.Context, item *workitem.WorkItem) error {
	if err := s.inner.InsertWorkItem(ctx, item); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, itemKey(item.ID))
	return nil
}

func (s *Store) GetWorkItem(ctx context.Context, id string) (*workitem.WorkItem, error) {
	if data, ok, err := s.cache.Get(ctx, itemKey(id)); err == nil && ok {
		var w workitem.WorkItem
		if json.Unmarshal(data, &w) == nil {
			return &w, nil
		}
	}

	w, err := s.inner.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(w); err == nil {
		_ = s.cache.Set(ctx, itemKey(id), data, s.ttl)
	}
	return w, nil
}

func (s *Store) ListWorkItems(ctx context.Context, filter workitem.Filter) ([]workitem.WorkItem, error) {
	return s.inner.ListWorkItems(ctx, filter)
}

func (s *Store) SwapStatus(ctx context.Context, id string, from, to workitem.Status, upd workitem.StatusUpdate) (*workitem.WorkItem, error) {
	w, err := s.inner.SwapStatus(ctx, id, from, to, upd)
	if err != nil {
		// A lost race still means the cached copy may be stale.
		_ = s.cache.Delete(ctx, itemKey(id))
		return nil, err
	}
	_ = s.cache.Delete(ctx, itemKey(id))
	return w, nil
}

// --- Participants (pass-through; ranking needs fresh weights) ---

func (s *Store) SaveParticipant(ctx context.Context, p *participant.Participant) error {
	return s.inner.SaveParticipant(ctx, p)
}

func (s *Store) GetParticipant(ctx context.Context, id string) (*participant.Participant, error) {
	return s.inner.GetParticipant(ctx, id)
}

func (s *Store) ListParticipants(ctx context.Context) ([]participant.Participant, error) {
	return s.inner.ListParticipants(ctx)
}

func (s *Store) UpdateParticipant(ctx context.Context, id string, mutate func(*participant.Participant) error) error {
	return s.inner.UpdateParticipant(ctx, id, mutate)
}

func (s *Store) CountOpenItems(ctx context.Context, participantID string) (int, error) {
	return s.inner.CountOpenItems(ctx, participantID)
}

// --- Decisions ---

func (s *Store) InsertDecision(ctx context.Context, d *decision.Decision) error {
	if err := s.inner.InsertDecision(ctx, d); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, decisionsKey(d.WorkItemID))
	return nil
}

func (s *Store) ListDecisionsByWorkItem(ctx context.Context, workItemID string) ([]decision.Decision, error) {
	if data, ok, err := s.cache.Get(ctx, decisionsKey(workItemID)); err == nil && ok {
		var decisions []decision.Decision
		if json.Unmarshal(data, &decisions) == nil {
			return decisions, nil
		}
	}

	decisions, err := s.inner.ListDecisionsByWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(decisions); err == nil {
		_ = s.cache.Set(ctx, decisionsKey(workItemID), data, s.ttl)
	}
	return decisions, nil
}
