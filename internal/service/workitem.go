// Package service implements the engine's application services over the
// store, audit log, dispatch and messaging ports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Strob0t/Hivemind/internal/adapter/ws"
	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/audit"
	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/auditlog"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
	"github.com/Strob0t/Hivemind/internal/port/store"
)

// WorkItemService owns the work item hierarchy: inserts with DAG validation,
// serialized status transitions, and the audit side effects of both.
type WorkItemService struct {
	store store.Store
	audit auditlog.Log
	queue messagequeue.Queue // optional
	hub   *ws.Hub            // optional
}

// NewWorkItemService creates a WorkItemService. queue and hub may be nil when
// event fan-out is not wired (tests, embedded use).
func NewWorkItemService(st store.Store, log auditlog.Log, queue messagequeue.Queue, hub *ws.Hub) *WorkItemService {
	return &WorkItemService{store: st, audit: log, queue: queue, hub: hub}
}

// Insert validates and stores a new work item. The dependency graph must stay
// acyclic; on rejection the store is unchanged.
func (s *WorkItemService) Insert(ctx context.Context, item *workitem.WorkItem) (string, error) {
	if !workitem.ValidKind(item.Kind) {
		return "", fmt.Errorf("insert work item: unknown kind %q", item.Kind)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = workitem.StatusPending
	}

	if err := s.checkAcyclic(ctx, item); err != nil {
		return "", err
	}

	if err := s.store.InsertWorkItem(ctx, item); err != nil {
		return "", fmt.Errorf("insert work item %s: %w", item.ID, err)
	}

	s.appendAudit(ctx, &audit.Entry{
		WorkItemID: item.ID,
		Action:     audit.ActionWorkItemInserted,
		Details:    mustJSON(map[string]string{"kind": string(item.Kind), "title": item.Title}),
	})

	return item.ID, nil
}

// checkAcyclic verifies all dependencies exist and that following dependsOn
// edges from the new item never reaches the item itself.
func (s *WorkItemService) checkAcyclic(ctx context.Context, item *workitem.WorkItem) error {
	for _, dep := range item.DependsOn {
		if dep == item.ID {
			return fmt.Errorf("work item %s depends on itself: %w", item.ID, domain.ErrDependencyCycle)
		}
		if _, err := s.store.GetWorkItem(ctx, dep); err != nil {
			return fmt.Errorf("dependency %s of %s: %w", dep, item.ID, err)
		}
	}

	// Walk the existing graph from each dependency. Existing items cannot
	// reference the new id unless an insert with that id raced ahead, but the
	// check keeps the DAG invariant independent of insert ordering.
	seen := map[string]bool{}
	stack := append([]string(nil), item.DependsOn...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == item.ID {
			return fmt.Errorf("work item %s: %w", item.ID, domain.ErrDependencyCycle)
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		dep, err := s.store.GetWorkItem(ctx, id)
		if err != nil {
			continue
		}
		stack = append(stack, dep.DependsOn...)
	}
	return nil
}

// Get returns a work item by id.
func (s *WorkItemService) Get(ctx context.Context, id string) (*workitem.WorkItem, error) {
	return s.store.GetWorkItem(ctx, id)
}

// List returns work items matching the filter.
func (s *WorkItemService) List(ctx context.Context, filter workitem.Filter) ([]workitem.WorkItem, error) {
	return s.store.ListWorkItems(ctx, filter)
}

// ListReady returns pending items of the given kind whose dependencies are
// all done.
func (s *WorkItemService) ListReady(ctx context.Context, kind workitem.Kind) ([]workitem.WorkItem, error) {
	pending, err := s.store.ListWorkItems(ctx, workitem.Filter{Kind: kind, Status: workitem.StatusPending})
	if err != nil {
		return nil, err
	}

	var ready []workitem.WorkItem
	for i := range pending {
		ok, err := s.dependenciesDone(ctx, &pending[i])
		if err != nil {
			return nil, err
		}
		if ok {
			ready = append(ready, pending[i])
		}
	}
	return ready, nil
}

// UpdateStatus transitions a work item to a new status. Transitions are
// validated against the legal table, gated on dependency completion where
// required, and serialized per item: a request against a stale current status
// fails with ErrInvalidTransition instead of overwriting. A same-status
// update is an idempotent no-op and appends no audit entry.
func (s *WorkItemService) UpdateStatus(ctx context.Context, id string, to workitem.Status, upd workitem.StatusUpdate) (*workitem.WorkItem, error) {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update status of %s: %w", id, err)
	}

	from := item.Status
	if from == to {
		return item, nil
	}

	if !workitem.CanTransition(from, to) {
		return nil, fmt.Errorf("work item %s: %s -> %s: %w", id, from, to, domain.ErrInvalidTransition)
	}

	if needsDependencies(from, to) {
		ok, err := s.dependenciesDone(ctx, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("work item %s: %s -> %s: %w", id, from, to, domain.ErrDependencyNotSatisfied)
		}
	}

	updated, err := s.store.SwapStatus(ctx, id, from, to, upd)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Someone else transitioned the item first.
			return nil, fmt.Errorf("work item %s: %s -> %s: %w", id, from, to, domain.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update status of %s: %w", id, err)
	}

	s.appendAudit(ctx, &audit.Entry{
		WorkItemID: id,
		Action:     audit.ActionStatusChanged,
		Details: mustJSON(map[string]string{
			"from":   string(from),
			"to":     string(to),
			"reason": upd.Reason,
		}),
	})
	s.publishStatus(ctx, updated, from)

	return updated, nil
}

// Cancel transitions a work item to cancelled from any status. Cancelling an
// already cancelled item is a no-op.
func (s *WorkItemService) Cancel(ctx context.Context, id, reason string) (*workitem.WorkItem, error) {
	return s.UpdateStatus(ctx, id, workitem.StatusCancelled, workitem.StatusUpdate{Reason: reason})
}

// GetDecisionHistory returns every decision recorded for a work item.
func (s *WorkItemService) GetDecisionHistory(ctx context.Context, id string) ([]decision.Decision, error) {
	if _, err := s.store.GetWorkItem(ctx, id); err != nil {
		return nil, fmt.Errorf("decision history of %s: %w", id, err)
	}
	return s.store.ListDecisionsByWorkItem(ctx, id)
}

// GetAuditTrail returns the audit entries for a work item in append order.
func (s *WorkItemService) GetAuditTrail(ctx context.Context, id string) ([]audit.Entry, error) {
	return s.audit.Query(ctx, audit.Filter{WorkItemID: id})
}

// needsDependencies reports whether a from → to transition is gated on all
// dependencies being done: leaving the waiting states toward active work, and
// any entry into done.
func needsDependencies(from, to workitem.Status) bool {
	if to == workitem.StatusDone {
		return true
	}
	if !from.LeavesWaiting() {
		return false
	}
	switch to {
	case workitem.StatusRouted, workitem.StatusAwaitingConsensus, workitem.StatusInProgress:
		return true
	}
	return false
}

func (s *WorkItemService) dependenciesDone(ctx context.Context, item *workitem.WorkItem) (bool, error) {
	for _, dep := range item.DependsOn {
		d, err := s.store.GetWorkItem(ctx, dep)
		if err != nil {
			return false, fmt.Errorf("dependency %s of %s: %w", dep, item.ID, err)
		}
		if d.Status != workitem.StatusDone {
			return false, nil
		}
	}
	return true, nil
}

func (s *WorkItemService) appendAudit(ctx context.Context, e *audit.Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := s.audit.Append(ctx, e); err != nil {
		slog.Error("append audit entry", "action", e.Action, "work_item_id", e.WorkItemID, "error", err)
	}
}

func (s *WorkItemService) publishStatus(ctx context.Context, item *workitem.WorkItem, from workitem.Status) {
	if s.queue != nil {
		data := mustJSON(messagequeue.WorkItemStatusPayload{
			WorkItemID: item.ID,
			Kind:       string(item.Kind),
			From:       string(from),
			To:         string(item.Status),
			AssignedTo: item.AssignedTo,
			Reason:     item.Reason,
		})
		if err := s.queue.Publish(ctx, messagequeue.SubjectWorkItemStatus, data); err != nil {
			slog.Error("publish work item status", "work_item_id", item.ID, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventWorkItemStatus, ws.WorkItemStatusEvent{
			WorkItemID: item.ID,
			Kind:       string(item.Kind),
			From:       string(from),
			To:         string(item.Status),
			AssignedTo: item.AssignedTo,
			Confidence: item.Confidence,
			Reason:     item.Reason,
		})
	}
}

// mustJSON marshals v, returning nil on failure. Used for audit details and
// event payloads built from plain maps and structs.
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
