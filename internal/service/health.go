package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Strob0t/Hivemind/internal/adapter/otel"
	"github.com/Strob0t/Hivemind/internal/adapter/ws"
	"github.com/Strob0t/Hivemind/internal/config"
	"github.com/Strob0t/Hivemind/internal/domain/audit"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/port/auditlog"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
	"github.com/Strob0t/Hivemind/internal/port/store"
	"github.com/Strob0t/Hivemind/internal/resilience"
)

// HealthService tracks per-participant circuit breakers and reputation
// weights. Breakers live in memory and are authoritative; the store's health
// field is a synced snapshot for observability and restarts.
type HealthService struct {
	store   store.Store
	audit   auditlog.Log
	queue   messagequeue.Queue // optional
	hub     *ws.Hub            // optional
	metrics *otel.Metrics      // optional

	breakerCfg config.Breaker
	weightsCfg config.Weights

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// NewHealthService creates a HealthService.
func NewHealthService(st store.Store, log auditlog.Log, queue messagequeue.Queue, hub *ws.Hub, metrics *otel.Metrics, breakerCfg config.Breaker, weightsCfg config.Weights) *HealthService {
	return &HealthService{
		store:      st,
		audit:      log,
		queue:      queue,
		hub:        hub,
		metrics:    metrics,
		breakerCfg: breakerCfg,
		weightsCfg: weightsCfg,
		breakers:   make(map[string]*resilience.Breaker),
	}
}

func (s *HealthService) breaker(id string) *resilience.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[id]
	if !ok {
		b = resilience.NewBreaker(s.breakerCfg.FailureThreshold, s.breakerCfg.OpenDuration, s.breakerCfg.MaxOpenDuration)
		s.breakers[id] = b
	}
	return b
}

// Allow reports whether the participant may be sent a request right now. An
// open breaker past its probe time admits exactly one half-open probe.
func (s *HealthService) Allow(id string) bool {
	return s.breaker(id).Allow()
}

// StateOf maps the participant's breaker state to the domain health value.
func (s *HealthService) StateOf(id string) participant.Health {
	switch s.breaker(id).State() {
	case resilience.StateOpen:
		return participant.HealthOpen
	case resilience.StateHalfOpen:
		return participant.HealthHalfOpen
	default:
		return participant.HealthClosed
	}
}

// ReportSuccess records a successful interaction: the breaker closes and its
// backoff resets. A success that recovers a tripped breaker also restores
// the participant's weight by the recovery step, capped at the maximum;
// routine successes on a closed breaker leave weight alone.
func (s *HealthService) ReportSuccess(ctx context.Context, id string) {
	b := s.breaker(id)
	wasOpen := b.State() != resilience.StateClosed
	b.RecordSuccess()

	if wasOpen {
		s.appendBreakerAudit(ctx, id, audit.ActionBreakerClosed)
		s.adjustWeight(ctx, id, s.weightsCfg.RecoveryStep)
		s.syncHealth(ctx, id)
	}
}

// ReportMajority recovers the weight of a participant whose vote matched the
// accepted outcome, by the configured step and capped at the maximum.
func (s *HealthService) ReportMajority(ctx context.Context, id string) {
	s.adjustWeight(ctx, id, s.weightsCfg.RecoveryStep)
}

// ReportFailure records a failed or timed-out interaction. Crossing the
// failure threshold opens the breaker; a failed half-open probe re-opens it
// with doubled backoff.
func (s *HealthService) ReportFailure(ctx context.Context, id string) {
	b := s.breaker(id)
	wasOpen := b.State() == resilience.StateOpen
	b.RecordFailure()

	if !wasOpen && b.State() == resilience.StateOpen {
		slog.Warn("participant breaker opened",
			"participant_id", id,
			"consecutive_failures", b.ConsecutiveFailures(),
			"next_probe_at", b.NextProbeAt(),
		)
		if s.metrics != nil {
			s.metrics.BreakerOpens.Add(ctx, 1)
		}
		s.appendBreakerAudit(ctx, id, audit.ActionBreakerOpened)
	}
	s.syncHealth(ctx, id)
}

// ReportMinority decays the weight of a participant whose vote landed in the
// losing minority of an accepted decision. Breaker state is untouched: a
// wrong opinion is not an availability failure.
func (s *HealthService) ReportMinority(ctx context.Context, id string) {
	s.adjustWeight(ctx, id, -s.weightsCfg.DecayStep)
}

func (s *HealthService) adjustWeight(ctx context.Context, id string, delta float64) {
	var updated participant.Participant
	err := s.store.UpdateParticipant(ctx, id, func(p *participant.Participant) error {
		p.Weight += delta
		if p.Weight < 0 {
			p.Weight = 0
		}
		if p.Weight > s.weightsCfg.Max {
			p.Weight = s.weightsCfg.Max
		}
		updated = *p
		return nil
	})
	if err != nil {
		slog.Error("adjust participant weight", "participant_id", id, "error", err)
		return
	}
	s.publishHealth(ctx, id, updated.Weight)
}

// syncHealth writes the current breaker state into the stored participant.
func (s *HealthService) syncHealth(ctx context.Context, id string) {
	health := s.StateOf(id)
	var weight float64
	err := s.store.UpdateParticipant(ctx, id, func(p *participant.Participant) error {
		p.Health = health
		weight = p.Weight
		return nil
	})
	if err != nil {
		slog.Error("sync participant health", "participant_id", id, "error", err)
		return
	}
	s.publishHealth(ctx, id, weight)
}

func (s *HealthService) appendBreakerAudit(ctx context.Context, id string, action audit.Action) {
	e := &audit.Entry{
		ID:            uuid.NewString(),
		ParticipantID: id,
		Action:        action,
	}
	if err := s.audit.Append(ctx, e); err != nil {
		slog.Error("append audit entry", "action", action, "participant_id", id, "error", err)
	}
}

func (s *HealthService) publishHealth(ctx context.Context, id string, weight float64) {
	health := string(s.StateOf(id))
	if s.queue != nil {
		data := mustJSON(messagequeue.ParticipantHealthPayload{
			ParticipantID: id,
			Health:        health,
			Weight:        weight,
		})
		if err := s.queue.Publish(ctx, messagequeue.SubjectParticipantHealth, data); err != nil {
			slog.Error("publish participant health", "participant_id", id, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventParticipantHealth, ws.ParticipantHealthEvent{
			ParticipantID: id,
			Health:        health,
			Weight:        weight,
		})
	}
}
