package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/Hivemind/internal/adapter/otel"
	"github.com/Strob0t/Hivemind/internal/adapter/ws"
	"github.com/Strob0t/Hivemind/internal/config"
	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/audit"
	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/auditlog"
	"github.com/Strob0t/Hivemind/internal/port/dispatch"
	"github.com/Strob0t/Hivemind/internal/port/messagequeue"
	"github.com/Strob0t/Hivemind/internal/port/store"
)

// ConsensusService runs weighted voting rounds over the decider pool and
// records the resulting decisions. Decisions are append-only; re-running a
// round adds a new record, it never rewrites history.
type ConsensusService struct {
	store    store.Store
	audit    auditlog.Log
	items    *WorkItemService
	registry *RegistryService
	health   *HealthService
	gateway  dispatch.Gateway
	queue    messagequeue.Queue // optional
	hub      *ws.Hub            // optional
	metrics  *otel.Metrics      // optional
	cfg      config.Consensus

	now func() time.Time

	mu            sync.Mutex
	onNoConsensus []NoConsensusHook
}

// NoConsensusHook is invoked after a round ends without an accepted decision.
type NoConsensusHook func(ctx context.Context, d *decision.Decision)

// NewConsensusService creates a ConsensusService.
func NewConsensusService(st store.Store, log auditlog.Log, items *WorkItemService, registry *RegistryService, health *HealthService, gateway dispatch.Gateway, queue messagequeue.Queue, hub *ws.Hub, metrics *otel.Metrics, cfg config.Consensus) *ConsensusService {
	return &ConsensusService{
		store:    st,
		audit:    log,
		items:    items,
		registry: registry,
		health:   health,
		gateway:  gateway,
		queue:    queue,
		hub:      hub,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// OnNoConsensus registers an escalation hook invoked whenever a round ends
// without an accepted decision.
func (s *ConsensusService) OnNoConsensus(fn NoConsensusHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNoConsensus = append(s.onNoConsensus, fn)
}

// Decide runs one consensus round for the work item: selects a decider panel,
// fans the question out in parallel, aggregates the weighted proposals, and
// records the decision. An accepted decision moves the item to done; a failed
// round moves it to failed and fires the escalation hooks. Cancelling ctx
// before aggregation discards all responses and leaves the item and the
// decision log untouched.
func (s *ConsensusService) Decide(ctx context.Context, workItemID string) (*decision.Decision, error) {
	item, err := s.store.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, fmt.Errorf("decide %s: %w", workItemID, err)
	}
	if item.Status.Terminal() {
		return nil, fmt.Errorf("decide %s: item is %s: %w", workItemID, item.Status, domain.ErrInvalidTransition)
	}

	sctx, span := otel.StartDecideSpan(ctx, workItemID, string(item.Kind))
	defer span.End()

	if item.Status != workitem.StatusAwaitingConsensus {
		item, err = s.items.UpdateStatus(sctx, workItemID, workitem.StatusAwaitingConsensus, workitem.StatusUpdate{Reason: "consensus round started"})
		if err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.DecisionsStarted.Add(sctx, 1)
	}

	panel, required, err := s.selectPanel(sctx, item.Tags)
	if err != nil {
		return nil, fmt.Errorf("decide %s: %w", workItemID, err)
	}

	// The round as a whole is bounded: when the deadline passes, whatever
	// proposals arrived in time resolve as a partial-quorum decision.
	fanCtx, cancelFan := context.WithTimeout(sctx, s.cfg.DecideTimeout)
	proposals := s.collectProposals(fanCtx, item, panel)
	cancelFan()

	// The round is void if the caller cancelled while votes were in flight.
	// Late responses are discarded and nothing is written. The round deadline
	// above does not trip this check; only caller cancellation does.
	if err := ctx.Err(); err != nil {
		slog.Info("consensus round cancelled", "work_item_id", workItemID, "responses_discarded", len(proposals))
		return nil, err
	}

	d := aggregate(proposals, s.cfg.Threshold, required)
	d.ID = uuid.NewString()
	d.WorkItemID = workItemID
	d.Source = decision.SourceConsensus
	d.CreatedAt = s.now()

	if err := s.recordDecision(sctx, d); err != nil {
		return nil, fmt.Errorf("decide %s: %w", workItemID, err)
	}

	if d.Accepted {
		s.applyReputation(sctx, d)
		conf := d.AgreementScore
		if _, err := s.items.UpdateStatus(sctx, workItemID, workitem.StatusDone, workitem.StatusUpdate{
			Confidence: &conf,
			Reason:     d.Outcome,
		}); err != nil {
			return d, fmt.Errorf("decide %s: apply outcome: %w", workItemID, err)
		}
		if s.metrics != nil {
			s.metrics.DecisionsAccepted.Add(sctx, 1)
		}
		return d, nil
	}

	if s.metrics != nil {
		s.metrics.DecisionsFailed.Add(sctx, 1)
	}
	if _, err := s.items.UpdateStatus(sctx, workItemID, workitem.StatusFailed, workitem.StatusUpdate{Reason: noConsensusReason(d)}); err != nil {
		return d, fmt.Errorf("decide %s: apply outcome: %w", workItemID, err)
	}

	s.mu.Lock()
	hooks := append([]NoConsensusHook(nil), s.onNoConsensus...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(sctx, d)
	}

	return d, fmt.Errorf("decide %s: score %.3f quorum_met %v: %w", workItemID, d.AgreementScore, d.QuorumMet, domain.ErrNoConsensus)
}

// selectPanel picks the deciders for a round. Deciders with capability
// overlap are preferred; if they alone cannot reach quorum the panel is
// padded with the remaining available deciders. required is the quorum
// against the full registered decider population, not the panel size.
func (s *ConsensusService) selectPanel(ctx context.Context, tags []string) ([]participant.Ranked, int, error) {
	all, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, 0, err
	}
	registered := 0
	for i := range all {
		if !all[i].Disabled && all[i].Role.Decides() {
			registered++
		}
	}
	if registered == 0 {
		return nil, 0, domain.ErrNoCapableParticipant
	}
	required := int(math.Ceil(s.cfg.MinQuorumFraction * float64(registered)))
	if required < 1 {
		required = 1
	}

	ranked, err := s.registry.ListByCapability(ctx, tags, participant.RoleDecider)
	if err != nil {
		return nil, 0, err
	}
	if len(ranked) == 0 {
		return nil, 0, domain.ErrNoCapableParticipant
	}

	panel := make([]participant.Ranked, 0, len(ranked))
	for _, r := range ranked {
		if r.Score > 0 {
			panel = append(panel, r)
		}
	}
	if len(panel) < required {
		for _, r := range ranked {
			if r.Score <= 0 {
				panel = append(panel, r)
			}
			if len(panel) >= required {
				break
			}
		}
	}
	if len(panel) == 0 {
		panel = ranked
	}
	return panel, required, nil
}

// collectProposals fans the question out to the panel in parallel. Breaker
// rejections and repeated dispatch failures become abstentions rather than
// round failures.
func (s *ConsensusService) collectProposals(ctx context.Context, item *workitem.WorkItem, panel []participant.Ranked) []decision.Proposal {
	var (
		mu        sync.Mutex
		proposals []decision.Proposal
	)

	req := dispatch.Request{
		WorkItemID:  item.ID,
		Kind:        string(item.Kind),
		Title:       item.Title,
		Description: item.Description,
		Tags:        item.Tags,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, member := range panel {
		p := member.Participant
		g.Go(func() error {
			resp, err := s.send(gctx, p.ID, req)
			if err != nil {
				slog.Warn("decider abstained", "participant_id", p.ID, "work_item_id", item.ID, "error", err)
				return nil
			}
			mu.Lock()
			proposals = append(proposals, decision.Proposal{
				ParticipantID: p.ID,
				Value:         resp.Value,
				Confidence:    clamp(resp.Confidence, 0, 1),
				Weight:        p.Weight,
				ReceivedAt:    s.now(),
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return proposals
}

// send dispatches one request through the gateway with the breaker wrapped
// around it, retrying once on timeout or transport failure. A first-attempt
// failure is a grace period; the breaker counts one failure per round, and
// only once the retry is exhausted.
func (s *ConsensusService) send(ctx context.Context, participantID string, req dispatch.Request) (*dispatch.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.health.Allow(participantID) {
			return nil, fmt.Errorf("participant %s breaker open", participantID)
		}

		dctx, span := otel.StartDispatchSpan(ctx, participantID)
		start := s.now()
		resp, err := s.gateway.Send(dctx, participantID, req, s.cfg.DispatchTimeout)
		span.End()
		if s.metrics != nil {
			s.metrics.DispatchLatency.Record(ctx, time.Since(start).Seconds())
		}

		if err == nil {
			s.health.ReportSuccess(ctx, participantID)
			return resp, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		lastErr = err
	}
	s.health.ReportFailure(ctx, participantID)
	return nil, lastErr
}

// aggregate reduces the proposals of one round to a decision. The modal
// outcome is the value with the greatest weighted-confidence mass; the
// agreement score is that mass over the total weight of all responders. Ties
// between outcomes break toward the higher average confidence, then toward
// the outcome whose first proposal arrived earliest. Acceptance is
// availability-first: a round that lost quorum can still be accepted on its
// agreement score, with quorum_met=false on the record for downstream
// caution.
func aggregate(proposals []decision.Proposal, threshold float64, required int) *decision.Decision {
	d := &decision.Decision{
		Proposals: proposals,
		QuorumMet: len(proposals) >= required,
	}
	if len(proposals) == 0 {
		return d
	}

	type group struct {
		value    string
		mass     float64
		confSum  float64
		count    int
		earliest time.Time
	}
	groups := map[string]*group{}
	var totalWeight float64
	for _, p := range proposals {
		totalWeight += p.Weight
		g, ok := groups[p.Value]
		if !ok {
			g = &group{value: p.Value, earliest: p.ReceivedAt}
			groups[p.Value] = g
		}
		g.mass += p.Weight * p.Confidence
		g.confSum += p.Confidence
		g.count++
		if p.ReceivedAt.Before(g.earliest) {
			g.earliest = p.ReceivedAt
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.mass != b.mass {
			return a.mass > b.mass
		}
		avgA, avgB := a.confSum/float64(a.count), b.confSum/float64(b.count)
		if avgA != avgB {
			return avgA > avgB
		}
		return a.earliest.Before(b.earliest)
	})

	modal := ordered[0]
	d.Outcome = modal.value
	if totalWeight > 0 {
		d.AgreementScore = modal.mass / totalWeight
	}
	d.Accepted = d.AgreementScore >= threshold
	return d
}

// applyReputation rewards voters who matched the accepted outcome and decays
// those who landed in the minority.
func (s *ConsensusService) applyReputation(ctx context.Context, d *decision.Decision) {
	for _, p := range d.Proposals {
		if p.Value == d.Outcome {
			s.health.ReportMajority(ctx, p.ParticipantID)
		} else {
			s.health.ReportMinority(ctx, p.ParticipantID)
		}
	}
}

func (s *ConsensusService) recordDecision(ctx context.Context, d *decision.Decision) error {
	if err := s.store.InsertDecision(ctx, d); err != nil {
		return err
	}

	e := &audit.Entry{
		ID:         uuid.NewString(),
		WorkItemID: d.WorkItemID,
		DecisionID: d.ID,
		Action:     audit.ActionDecisionRecorded,
		Source:     string(d.Source),
		Details: mustJSON(map[string]any{
			"outcome":         d.Outcome,
			"agreement_score": d.AgreementScore,
			"quorum_met":      d.QuorumMet,
			"accepted":        d.Accepted,
			"proposals":       len(d.Proposals),
		}),
	}
	if d.Source == decision.SourceManualOverride {
		e.Action = audit.ActionDecisionForced
	}
	if err := s.audit.Append(ctx, e); err != nil {
		slog.Error("append audit entry", "action", e.Action, "decision_id", d.ID, "error", err)
	}

	s.publishDecision(ctx, d)

	if s.metrics != nil {
		s.metrics.AgreementScore.Record(ctx, d.AgreementScore)
	}
	return nil
}

// ForceDecision records a manual-override decision and moves the work item to
// done regardless of the usual transition gates. Terminal items cannot be
// overridden.
func (s *ConsensusService) ForceDecision(ctx context.Context, workItemID, outcome, justification string) (*decision.Decision, error) {
	item, err := s.store.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, fmt.Errorf("force decision on %s: %w", workItemID, err)
	}
	if item.Status.Terminal() {
		return nil, fmt.Errorf("force decision on %s: item is %s: %w", workItemID, item.Status, domain.ErrInvalidTransition)
	}

	d := &decision.Decision{
		ID:            uuid.NewString(),
		WorkItemID:    workItemID,
		Outcome:       outcome,
		Accepted:      true,
		Source:        decision.SourceManualOverride,
		Justification: justification,
		CreatedAt:     s.now(),
	}
	if err := s.recordDecision(ctx, d); err != nil {
		return nil, fmt.Errorf("force decision on %s: %w", workItemID, err)
	}

	// Manual overrides bypass the transition table. The swap is still CAS so
	// a concurrent transition loses cleanly.
	updated, err := s.store.SwapStatus(ctx, workItemID, item.Status, workitem.StatusDone, workitem.StatusUpdate{Reason: justification})
	if err != nil {
		return d, fmt.Errorf("force decision on %s: %w", workItemID, err)
	}
	s.items.appendAudit(ctx, &audit.Entry{
		WorkItemID: workItemID,
		Action:     audit.ActionStatusChanged,
		Source:     string(decision.SourceManualOverride),
		Details: mustJSON(map[string]string{
			"from":   string(item.Status),
			"to":     string(workitem.StatusDone),
			"reason": justification,
		}),
	})
	s.items.publishStatus(ctx, updated, item.Status)

	return d, nil
}

func (s *ConsensusService) publishDecision(ctx context.Context, d *decision.Decision) {
	if s.queue != nil {
		data := mustJSON(messagequeue.DecisionCreatedPayload{
			DecisionID:     d.ID,
			WorkItemID:     d.WorkItemID,
			Outcome:        d.Outcome,
			AgreementScore: d.AgreementScore,
			QuorumMet:      d.QuorumMet,
			Accepted:       d.Accepted,
			Source:         string(d.Source),
		})
		if err := s.queue.Publish(ctx, messagequeue.SubjectDecisionCreated, data); err != nil {
			slog.Error("publish decision", "decision_id", d.ID, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventDecisionCreated, ws.DecisionCreatedEvent{
			DecisionID:     d.ID,
			WorkItemID:     d.WorkItemID,
			Outcome:        d.Outcome,
			AgreementScore: d.AgreementScore,
			QuorumMet:      d.QuorumMet,
			Accepted:       d.Accepted,
			Source:         string(d.Source),
		})
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func noConsensusReason(d *decision.Decision) string {
	if !d.QuorumMet {
		return fmt.Sprintf("agreement %.2f below threshold, quorum not met", d.AgreementScore)
	}
	return fmt.Sprintf("agreement %.2f below threshold", d.AgreementScore)
}
