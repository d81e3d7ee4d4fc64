package service

import (
	"context"
	"math"
	"testing"

	"github.com/Strob0t/Hivemind/internal/domain/audit"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 1.0, "go")

	e.health.ReportFailure(ctx, "p1")
	e.health.ReportFailure(ctx, "p1")
	if got := e.health.StateOf("p1"); got != participant.HealthClosed {
		t.Fatalf("after 2 failures state = %s, want closed", got)
	}
	if !e.health.Allow("p1") {
		t.Fatal("closed breaker must allow requests")
	}

	e.health.ReportFailure(ctx, "p1")
	if got := e.health.StateOf("p1"); got != participant.HealthOpen {
		t.Fatalf("after 3 failures state = %s, want open", got)
	}
	if e.health.Allow("p1") {
		t.Fatal("open breaker must reject requests")
	}

	// Stored snapshot follows the breaker.
	p, err := e.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant error: %v", err)
	}
	if p.Health != participant.HealthOpen {
		t.Fatalf("stored health = %s, want open", p.Health)
	}

	entries, err := e.auditLog.Query(ctx, audit.Filter{ParticipantID: "p1", Action: audit.ActionBreakerOpened})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d breaker-open audit entries, want 1", len(entries))
	}
}

func TestReportSuccessClosesBreaker(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 1.0, "go")

	for i := 0; i < 3; i++ {
		e.health.ReportFailure(ctx, "p1")
	}
	e.health.ReportSuccess(ctx, "p1")

	if got := e.health.StateOf("p1"); got != participant.HealthClosed {
		t.Fatalf("state after success = %s, want closed", got)
	}
	entries, err := e.auditLog.Query(ctx, audit.Filter{ParticipantID: "p1", Action: audit.ActionBreakerClosed})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d breaker-closed audit entries, want 1", len(entries))
	}
}

func TestWeightRecoveryCappedAtMax(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 1.95, "go")

	e.health.ReportMajority(ctx, "p1")
	e.health.ReportMajority(ctx, "p1")

	p, err := e.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant error: %v", err)
	}
	if p.Weight != 2.0 {
		t.Fatalf("weight = %v, want capped at 2.0", p.Weight)
	}
}

func TestWeightDecayFlooredAtZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 0.08, "go")

	e.health.ReportMinority(ctx, "p1")
	e.health.ReportMinority(ctx, "p1")

	p, err := e.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant error: %v", err)
	}
	if p.Weight != 0 {
		t.Fatalf("weight = %v, want floored at 0", p.Weight)
	}
}

func TestHealthEventsPublished(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 1.0, "go")

	for i := 0; i < 3; i++ {
		e.health.ReportFailure(ctx, "p1")
	}
	if got := e.queue.count(messagequeue.SubjectParticipantHealth); got == 0 {
		t.Fatal("expected participant health events on the queue")
	}
}

func TestBreakerRecoveryRestoresWeight(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 1.0, "go")

	for i := 0; i < 3; i++ {
		e.health.ReportFailure(ctx, "p1")
	}
	e.health.ReportSuccess(ctx, "p1")

	p, err := e.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant error: %v", err)
	}
	if math.Abs(p.Weight-1.1) > 1e-9 {
		t.Fatalf("weight after breaker recovery = %v, want 1.1", p.Weight)
	}
	if p.Health != participant.HealthClosed {
		t.Fatalf("health after recovery = %s, want closed", p.Health)
	}
}

func TestBreakerRecoveryWeightCapped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 1.95, "go")

	for i := 0; i < 3; i++ {
		e.health.ReportFailure(ctx, "p1")
	}
	e.health.ReportSuccess(ctx, "p1")

	p, err := e.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant error: %v", err)
	}
	if p.Weight != 2.0 {
		t.Fatalf("weight = %v, want capped at 2.0", p.Weight)
	}
}

func TestRoutineSuccessLeavesWeight(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addParticipant(t, "p1", participant.RoleBoth, 1.0, "go")

	// Success on a closed breaker is a routine ack, not a recovery.
	e.health.ReportSuccess(ctx, "p1")

	p, err := e.store.GetParticipant(ctx, "p1")
	if err != nil {
		t.Fatalf("GetParticipant error: %v", err)
	}
	if p.Weight != 1.0 {
		t.Fatalf("weight = %v, want unchanged 1.0", p.Weight)
	}
}
