package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/dispatch"
)

func TestRouteDirectAssignment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Perfect capability match at weight 1.0 scores 1.0, above 0.75.
	e.addParticipant(t, "worker", participant.RoleExecutor, 1.0, "go", "db")
	e.gateway.script("worker", scriptedReply{resp: &dispatch.Response{Value: "ack", Confidence: 1.0}})
	e.addItem(t, "t1", workitem.KindTask, []string{"go", "db"})

	res, err := e.router.Route(ctx, "t1")
	if err != nil {
		t.Fatalf("Route error: %v", err)
	}
	if res.Mode != RouteDirect {
		t.Fatalf("mode = %s, want direct", res.Mode)
	}
	if res.AssignedTo != "worker" {
		t.Fatalf("assigned to %q, want worker", res.AssignedTo)
	}
	e.mustStatus(t, "t1", workitem.StatusInProgress)

	item, _ := e.store.GetWorkItem(ctx, "t1")
	if item.AssignedTo != "worker" {
		t.Fatalf("stored assignee = %q, want worker", item.AssignedTo)
	}
	if item.Confidence != 1.0 {
		t.Fatalf("stored confidence = %v, want the routing score 1.0", item.Confidence)
	}
}

func TestRouteStrategicKindAlwaysConsensus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// A perfectly matching executor must not matter for an objective.
	e.addParticipant(t, "worker", participant.RoleExecutor, 1.0, "arch")
	e.addParticipant(t, "voter", participant.RoleDecider, 1.0, "arch")
	e.gateway.script("voter", scriptedReply{resp: &dispatch.Response{Value: "approve", Confidence: 0.9}})
	e.addItem(t, "obj1", workitem.KindObjective, []string{"arch"})

	res, err := e.router.Route(ctx, "obj1")
	if err != nil {
		t.Fatalf("Route error: %v", err)
	}
	if res.Mode != RouteConsensus {
		t.Fatalf("mode = %s, want consensus", res.Mode)
	}
	if res.Decision == nil || !res.Decision.Accepted {
		t.Fatalf("decision = %+v, want accepted", res.Decision)
	}
	if e.gateway.callCount("worker") != 0 {
		t.Fatal("executor must not be dispatched for a strategic item")
	}
}

func TestRouteMidBandGoesToConsensus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// One of three tags matches: score 1/3, between floor and threshold.
	e.addParticipant(t, "worker", participant.RoleBoth, 1.0, "go")
	e.gateway.script("worker", scriptedReply{resp: &dispatch.Response{Value: "approve", Confidence: 0.9}})
	e.addItem(t, "t1", workitem.KindTask, []string{"go", "db", "ui"})

	res, err := e.router.Route(ctx, "t1")
	if err != nil {
		t.Fatalf("Route error: %v", err)
	}
	if res.Mode != RouteConsensus {
		t.Fatalf("mode = %s, want consensus", res.Mode)
	}
}

func TestRouteNoCapableParticipantBlocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.addParticipant(t, "worker", participant.RoleExecutor, 1.0, "frontend")
	e.addItem(t, "t1", workitem.KindTask, []string{"db"})

	res, err := e.router.Route(ctx, "t1")
	if !errors.Is(err, domain.ErrNoCapableParticipant) {
		t.Fatalf("expected ErrNoCapableParticipant, got %v", err)
	}
	if res.Mode != RouteBlocked {
		t.Fatalf("mode = %s, want blocked", res.Mode)
	}
	e.mustStatus(t, "t1", workitem.StatusBlocked)

	item, _ := e.store.GetWorkItem(ctx, "t1")
	if item.Reason == "" {
		t.Fatal("blocked item must carry a reason")
	}
}

func TestRouteNoParticipantsAtAllBlocks(t *testing.T) {
	e := newEnv(t)
	e.addItem(t, "t1", workitem.KindTask, []string{"db"})

	_, err := e.router.Route(context.Background(), "t1")
	if !errors.Is(err, domain.ErrNoCapableParticipant) {
		t.Fatalf("expected ErrNoCapableParticipant, got %v", err)
	}
	e.mustStatus(t, "t1", workitem.StatusBlocked)
}

func TestRouteDispatchFailureEscalatesToConsensus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.addParticipant(t, "worker", participant.RoleExecutor, 1.0, "go")
	e.addParticipant(t, "voter", participant.RoleDecider, 1.0, "go")
	e.gateway.script("worker", scriptedReply{err: errors.New("unreachable")})
	e.gateway.script("voter", scriptedReply{resp: &dispatch.Response{Value: "approve", Confidence: 0.9}})
	e.addItem(t, "t1", workitem.KindTask, []string{"go"})

	res, err := e.router.Route(ctx, "t1")
	if err != nil {
		t.Fatalf("Route error: %v", err)
	}
	if res.Mode != RouteConsensus {
		t.Fatalf("mode = %s, want consensus after failed dispatch", res.Mode)
	}
	e.mustStatus(t, "t1", workitem.StatusDone)
}

func TestRouteNonPendingItemRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addItem(t, "t1", workitem.KindTask, nil)
	if _, err := e.items.Cancel(ctx, "t1", ""); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	_, err := e.router.Route(ctx, "t1")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRouteSkipsBreakerGatedExecutor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.addParticipant(t, "flaky", participant.RoleExecutor, 2.0, "go")
	e.addParticipant(t, "solid", participant.RoleExecutor, 1.0, "go")
	e.gateway.script("solid", scriptedReply{resp: &dispatch.Response{Value: "ack", Confidence: 1.0}})

	for i := 0; i < 3; i++ {
		e.health.ReportFailure(ctx, "flaky")
	}

	e.addItem(t, "t1", workitem.KindTask, []string{"go"})
	res, err := e.router.Route(ctx, "t1")
	if err != nil {
		t.Fatalf("Route error: %v", err)
	}
	if res.AssignedTo != "solid" {
		t.Fatalf("assigned to %q, want solid", res.AssignedTo)
	}
}
