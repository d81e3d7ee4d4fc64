package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
)

func TestInsertAndGetWorkItem(t *testing.T) {
	s := New()
	ctx := context.Background()

	item := &workitem.WorkItem{ID: "w1", Kind: workitem.KindTask, Title: "build", Status: workitem.StatusPending}
	if err := s.InsertWorkItem(ctx, item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetWorkItem(ctx, "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "build" {
		t.Fatalf("expected title build, got %q", got.Title)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Version)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()

	item := &workitem.WorkItem{ID: "w1", Kind: workitem.KindTask, Status: workitem.StatusPending}
	_ = s.InsertWorkItem(ctx, item)

	err := s.InsertWorkItem(ctx, item)
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestGetWorkItemNotFound(t *testing.T) {
	s := New()
	_, err := s.GetWorkItem(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSwapStatusStaleFails(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w1", Kind: workitem.KindTask, Status: workitem.StatusPending})

	if _, err := s.SwapStatus(ctx, "w1", workitem.StatusPending, workitem.StatusRouted, workitem.StatusUpdate{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second swap with the stale expected status must conflict.
	_, err := s.SwapStatus(ctx, "w1", workitem.StatusPending, workitem.StatusRouted, workitem.StatusUpdate{})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSwapStatusConcurrentSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w1", Kind: workitem.KindTask, Status: workitem.StatusInProgress})

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SwapStatus(ctx, "w1", workitem.StatusInProgress, workitem.StatusDone, workitem.StatusUpdate{}); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", count)
	}
}

func TestSwapStatusAppliesUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w1", Kind: workitem.KindTask, Status: workitem.StatusPending})

	assignee := "exec-1"
	conf := 0.82
	got, err := s.SwapStatus(ctx, "w1", workitem.StatusPending, workitem.StatusRouted, workitem.StatusUpdate{
		AssignedTo: &assignee,
		Confidence: &conf,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AssignedTo != "exec-1" || got.Confidence != 0.82 {
		t.Fatalf("expected assignment applied, got %+v", got)
	}
	if got.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", got.Version)
	}
}

func TestListWorkItemsFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w1", Kind: workitem.KindTask, Status: workitem.StatusPending})
	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w2", Kind: workitem.KindEpic, Status: workitem.StatusPending})
	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w3", Kind: workitem.KindTask, Status: workitem.StatusDone})

	got, err := s.ListWorkItems(ctx, workitem.Filter{Kind: workitem.KindTask, Status: workitem.StatusPending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "w1" {
		t.Fatalf("expected [w1], got %+v", got)
	}
}

func TestCountOpenItems(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w1", Kind: workitem.KindTask, Status: workitem.StatusRouted, AssignedTo: "p1"})
	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w2", Kind: workitem.KindTask, Status: workitem.StatusDone, AssignedTo: "p1"})
	_ = s.InsertWorkItem(ctx, &workitem.WorkItem{ID: "w3", Kind: workitem.KindTask, Status: workitem.StatusInProgress, AssignedTo: "p2"})

	n, err := s.CountOpenItems(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 open item for p1, got %d", n)
	}
}

func TestUpdateParticipant(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.SaveParticipant(ctx, &participant.Participant{ID: "p1", Weight: 1.0, Health: participant.HealthClosed})

	err := s.UpdateParticipant(ctx, "p1", func(p *participant.Participant) error {
		p.Weight = 1.1
		p.Health = participant.HealthHalfOpen
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.GetParticipant(ctx, "p1")
	if got.Weight != 1.1 || got.Health != participant.HealthHalfOpen {
		t.Fatalf("expected mutation applied, got %+v", got)
	}
}

func TestUpdateParticipantNotFound(t *testing.T) {
	s := New()
	err := s.UpdateParticipant(context.Background(), "missing", func(*participant.Participant) error { return nil })
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
