// Package memstore implements the store port in memory. It is the default
// backend for local development and tests; the postgres adapter provides the
// durable equivalent.
//
// Locking is fine-grained: the collection maps are guarded by short-lived
// read/write locks, and every document carries its own mutex so concurrent
// transitions on unrelated work items never contend.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
)

type itemEntry struct {
	mu   sync.Mutex
	item workitem.WorkItem
}

type participantEntry struct {
	mu sync.Mutex
	p  participant.Participant
}

// Store implements store.Store in memory.
type Store struct {
	mu           sync.RWMutex
	items        map[string]*itemEntry
	participants map[string]*participantEntry

	decMu     sync.RWMutex
	decisions []decision.Decision

	now func() time.Time // for testing
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		items:        make(map[string]*itemEntry),
		participants: make(map[string]*participantEntry),
		now:          time.Now,
	}
}

// --- Work items ---

// InsertWorkItem adds a new work item. Returns domain.ErrDuplicateID if the
// id is already present.
func (s *Store) InsertWorkItem(_ context.Context, item *workitem.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return domain.ErrDuplicateID
	}

	now := s.now()
	cp := *item
	cp.DependsOn = append([]string(nil), item.DependsOn...)
	cp.Tags = append([]string(nil), item.Tags...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	cp.Version = 1

	s.items[item.ID] = &itemEntry{item: cp}
	return nil
}

func (s *Store) GetWorkItem(_ context.Context, id string) (*workitem.WorkItem, error) {
	s.mu.RLock()
	e, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.item
	return &cp, nil
}

func (s *Store) ListWorkItems(_ context.Context, filter workitem.Filter) ([]workitem.WorkItem, error) {
	s.mu.RLock()
	entries := make([]*itemEntry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []workitem.WorkItem
	for _, e := range entries {
		e.mu.Lock()
		it := e.item
		e.mu.Unlock()

		if filter.Kind != "" && it.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && it.Status != filter.Status {
			continue
		}
		if filter.ParentID != "" && it.ParentID != filter.ParentID {
			continue
		}
		if filter.AssignedTo != "" && it.AssignedTo != filter.AssignedTo {
			continue
		}
		out = append(out, it)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SwapStatus transitions a work item from → to under the item's lock.
// Returns domain.ErrConflict when the stored status no longer matches from.
func (s *Store) SwapStatus(_ context.Context, id string, from, to workitem.Status, upd workitem.StatusUpdate) (*workitem.WorkItem, error) {
	s.mu.RLock()
	e, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.item.Status != from {
		return nil, domain.ErrConflict
	}

	e.item.Status = to
	if upd.AssignedTo != nil {
		e.item.AssignedTo = *upd.AssignedTo
	}
	if upd.Confidence != nil {
		e.item.Confidence = *upd.Confidence
	}
	if upd.Reason != "" {
		e.item.Reason = upd.Reason
	}
	e.item.Version++
	e.item.UpdatedAt = s.now()

	cp := e.item
	return &cp, nil
}

// --- Participants ---

func (s *Store) SaveParticipant(_ context.Context, p *participant.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cp := *p
	cp.DomainTags = append([]string(nil), p.DomainTags...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	if e, exists := s.participants[p.ID]; exists {
		e.mu.Lock()
		cp.CreatedAt = e.p.CreatedAt
		e.p = cp
		e.mu.Unlock()
		return nil
	}
	s.participants[p.ID] = &participantEntry{p: cp}
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (*participant.Participant, error) {
	s.mu.RLock()
	e, ok := s.participants[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.p
	return &cp, nil
}

func (s *Store) ListParticipants(_ context.Context) ([]participant.Participant, error) {
	s.mu.RLock()
	entries := make([]*participantEntry, 0, len(s.participants))
	for _, e := range s.participants {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]participant.Participant, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.p)
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateParticipant applies mutate under the participant's lock.
func (s *Store) UpdateParticipant(_ context.Context, id string, mutate func(*participant.Participant) error) error {
	s.mu.RLock()
	e, ok := s.participants[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := mutate(&e.p); err != nil {
		return err
	}
	e.p.UpdatedAt = s.now()
	return nil
}

// CountOpenItems returns how many non-terminal work items are assigned to the
// participant.
func (s *Store) CountOpenItems(_ context.Context, participantID string) (int, error) {
	s.mu.RLock()
	entries := make([]*itemEntry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	count := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.item.AssignedTo == participantID && e.item.Status.Open() {
			count++
		}
		e.mu.Unlock()
	}
	return count, nil
}

// --- Decisions ---

// InsertDecision appends a decision record. Decisions are append-only.
func (s *Store) InsertDecision(_ context.Context, d *decision.Decision) error {
	s.decMu.Lock()
	defer s.decMu.Unlock()

	for i := range s.decisions {
		if s.decisions[i].ID == d.ID {
			return domain.ErrDuplicateID
		}
	}

	cp := *d
	cp.Proposals = append([]decision.Proposal(nil), d.Proposals...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.decisions = append(s.decisions, cp)
	return nil
}

func (s *Store) ListDecisionsByWorkItem(_ context.Context, workItemID string) ([]decision.Decision, error) {
	s.decMu.RLock()
	defer s.decMu.RUnlock()

	var out []decision.Decision
	for i := range s.decisions {
		if s.decisions[i].WorkItemID == workItemID {
			out = append(out, s.decisions[i])
		}
	}
	return out, nil
}
