package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/audit"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
)

func TestInsertGeneratesID(t *testing.T) {
	e := newEnv(t)

	id, err := e.items.Insert(context.Background(), &workitem.WorkItem{Kind: workitem.KindTask, Title: "t"})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
	e.mustStatus(t, id, workitem.StatusPending)
}

func TestInsertDuplicateID(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "a", workitem.KindTask, nil)

	_, err := e.items.Insert(context.Background(), &workitem.WorkItem{ID: "a", Kind: workitem.KindTask, Title: "dup"})
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestInsertUnknownKind(t *testing.T) {
	e := newEnv(t)

	if _, err := e.items.Insert(context.Background(), &workitem.WorkItem{Kind: "saga", Title: "x"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestInsertSelfDependencyIsCycle(t *testing.T) {
	e := newEnv(t)

	_, err := e.items.Insert(context.Background(), &workitem.WorkItem{
		ID: "a", Kind: workitem.KindTask, Title: "x", DependsOn: []string{"a"},
	})
	if !errors.Is(err, domain.ErrDependencyCycle) {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}
	if _, err := e.store.GetWorkItem(context.Background(), "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rejected item must not be stored, got %v", err)
	}
}

func TestInsertMissingDependency(t *testing.T) {
	e := newEnv(t)

	_, err := e.items.Insert(context.Background(), &workitem.WorkItem{
		ID: "a", Kind: workitem.KindTask, Title: "x", DependsOn: []string{"ghost"},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusLegalTransition(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "a", workitem.KindTask, nil)

	assignee := "p1"
	item, err := e.items.UpdateStatus(context.Background(), "a", workitem.StatusRouted, workitem.StatusUpdate{AssignedTo: &assignee})
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if item.Status != workitem.StatusRouted || item.AssignedTo != "p1" {
		t.Fatalf("got status %s assigned %q", item.Status, item.AssignedTo)
	}
	if got := e.queue.count(messagequeue.SubjectWorkItemStatus); got != 1 {
		t.Fatalf("published %d status events, want 1", got)
	}
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "a", workitem.KindTask, nil)

	_, err := e.items.UpdateStatus(context.Background(), "a", workitem.StatusDone, workitem.StatusUpdate{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	e.mustStatus(t, "a", workitem.StatusPending)
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "a", workitem.KindTask, nil)
	before := e.auditLog.Len()

	item, err := e.items.UpdateStatus(context.Background(), "a", workitem.StatusPending, workitem.StatusUpdate{})
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if item.Version != 1 {
		t.Fatalf("no-op must not bump version, got %d", item.Version)
	}
	if e.auditLog.Len() != before {
		t.Fatal("no-op must not append an audit entry")
	}
}

func TestUpdateStatusDependencyGate(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "dep", workitem.KindTask, nil)
	e.addItem(t, "a", workitem.KindTask, nil, "dep")

	_, err := e.items.UpdateStatus(context.Background(), "a", workitem.StatusRouted, workitem.StatusUpdate{})
	if !errors.Is(err, domain.ErrDependencyNotSatisfied) {
		t.Fatalf("expected ErrDependencyNotSatisfied, got %v", err)
	}

	// Complete the dependency and retry.
	ctx := context.Background()
	for _, st := range []workitem.Status{workitem.StatusRouted, workitem.StatusInProgress, workitem.StatusDone} {
		if _, err := e.items.UpdateStatus(ctx, "dep", st, workitem.StatusUpdate{}); err != nil {
			t.Fatalf("advance dep to %s: %v", st, err)
		}
	}
	if _, err := e.items.UpdateStatus(ctx, "a", workitem.StatusRouted, workitem.StatusUpdate{}); err != nil {
		t.Fatalf("UpdateStatus after dep done: %v", err)
	}
}

func TestCancelFromAnyStatus(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "a", workitem.KindTask, nil)
	ctx := context.Background()

	if _, err := e.items.UpdateStatus(ctx, "a", workitem.StatusRouted, workitem.StatusUpdate{}); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if _, err := e.items.Cancel(ctx, "a", "operator request"); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	e.mustStatus(t, "a", workitem.StatusCancelled)

	// Cancelling again is idempotent.
	if _, err := e.items.Cancel(ctx, "a", "again"); err != nil {
		t.Fatalf("second Cancel error: %v", err)
	}
}

func TestCancelledItemRejectsOtherTransitions(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "a", workitem.KindTask, nil)
	ctx := context.Background()

	if _, err := e.items.Cancel(ctx, "a", ""); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	_, err := e.items.UpdateStatus(ctx, "a", workitem.StatusRouted, workitem.StatusUpdate{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestListReady(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItem(t, "dep", workitem.KindTask, nil)
	e.addItem(t, "gated", workitem.KindTask, nil, "dep")
	e.addItem(t, "free", workitem.KindTask, nil)

	ready, err := e.items.ListReady(ctx, workitem.KindTask)
	if err != nil {
		t.Fatalf("ListReady error: %v", err)
	}
	ids := map[string]bool{}
	for _, it := range ready {
		ids[it.ID] = true
	}
	if !ids["dep"] || !ids["free"] || ids["gated"] {
		t.Fatalf("ready set = %v, want dep and free only", ids)
	}
}

func TestAuditTrailRecordsTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItem(t, "a", workitem.KindTask, nil)

	if _, err := e.items.UpdateStatus(ctx, "a", workitem.StatusRouted, workitem.StatusUpdate{Reason: "assigned"}); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	trail, err := e.items.GetAuditTrail(ctx, "a")
	if err != nil {
		t.Fatalf("GetAuditTrail error: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(trail))
	}
	if trail[0].Action != audit.ActionWorkItemInserted || trail[1].Action != audit.ActionStatusChanged {
		t.Fatalf("unexpected actions %s, %s", trail[0].Action, trail[1].Action)
	}
}
