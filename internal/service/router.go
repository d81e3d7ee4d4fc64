package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/Hivemind/internal/adapter/otel"
	"github.com/Strob0t/Hivemind/internal/config"
	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/port/dispatch"
)

// RouteMode names how a work item was routed.
type RouteMode string

const (
	RouteDirect    RouteMode = "direct"
	RouteConsensus RouteMode = "consensus"
	RouteBlocked   RouteMode = "blocked"
)

// RouteResult reports the routing outcome for one work item.
type RouteResult struct {
	WorkItemID string             `json:"work_item_id"`
	Mode       RouteMode          `json:"mode"`
	AssignedTo string             `json:"assigned_to,omitempty"`
	Score      float64            `json:"score,omitempty"`
	Decision   *decision.Decision `json:"decision,omitempty"`
}

// RouterService assigns pending work items either directly to the best
// matching executor or hands them to the consensus coordinator. Strategic
// items never take the direct path.
type RouterService struct {
	items     *WorkItemService
	registry  *RegistryService
	health    *HealthService
	consensus *ConsensusService
	gateway   dispatch.Gateway
	metrics   *otel.Metrics // optional
	cfg       config.Router
	timeout   config.Consensus
}

// NewRouterService creates a RouterService. The consensus timeouts govern the
// direct dispatch leg as well, so both sections are taken.
func NewRouterService(items *WorkItemService, registry *RegistryService, health *HealthService, consensus *ConsensusService, gateway dispatch.Gateway, metrics *otel.Metrics, cfg config.Router, timeouts config.Consensus) *RouterService {
	return &RouterService{
		items:     items,
		registry:  registry,
		health:    health,
		consensus: consensus,
		gateway:   gateway,
		metrics:   metrics,
		cfg:       cfg,
		timeout:   timeouts,
	}
}

// Route evaluates a pending work item.
//
// Objectives and epics always go to consensus. Tasks and subtasks are
// assigned directly when the top-ranked executor scores at or above the
// direct-assign threshold; between the minimum floor and the threshold they
// go to consensus; when no executor reaches the floor the item is blocked
// with no capable participant.
func (s *RouterService) Route(ctx context.Context, workItemID string) (*RouteResult, error) {
	item, err := s.items.Get(ctx, workItemID)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", workItemID, err)
	}
	if item.Status != workitem.StatusPending {
		return nil, fmt.Errorf("route %s: status is %s: %w", workItemID, item.Status, domain.ErrInvalidTransition)
	}

	rctx, span := otel.StartRouteSpan(ctx, workItemID)
	defer span.End()

	if item.Kind.Strategic() {
		return s.toConsensus(rctx, item)
	}

	ranked, err := s.registry.ListByCapability(rctx, item.Tags, participant.RoleExecutor)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", workItemID, err)
	}

	if len(ranked) == 0 || ranked[0].Score < s.cfg.MinScoreFloor {
		return s.block(rctx, item)
	}

	if ranked[0].Score >= s.cfg.DirectAssignThreshold {
		return s.assignDirect(rctx, item, ranked)
	}

	return s.toConsensus(rctx, item)
}

// assignDirect assigns the item to the best executor whose breaker admits a
// request and dispatches the work. A failed dispatch escalates the item to
// consensus instead of leaving it stranded.
func (s *RouterService) assignDirect(ctx context.Context, item *workitem.WorkItem, ranked []participant.Ranked) (*RouteResult, error) {
	for _, r := range ranked {
		if r.Score < s.cfg.DirectAssignThreshold {
			break
		}
		if !s.health.Allow(r.Participant.ID) {
			continue
		}

		id := r.Participant.ID
		score := r.Score
		updated, err := s.items.UpdateStatus(ctx, item.ID, workitem.StatusRouted, workitem.StatusUpdate{
			AssignedTo: &id,
			Confidence: &score,
			Reason:     fmt.Sprintf("direct assignment, score %.2f", r.Score),
		})
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", item.ID, err)
		}

		dctx, span := otel.StartDispatchSpan(ctx, id)
		_, err = s.gateway.Send(dctx, id, dispatch.Request{
			WorkItemID:  item.ID,
			Kind:        string(item.Kind),
			Title:       item.Title,
			Description: item.Description,
			Tags:        item.Tags,
		}, s.timeout.DispatchTimeout)
		span.End()

		if err != nil {
			s.health.ReportFailure(ctx, id)
			slog.Warn("direct dispatch failed, escalating to consensus",
				"work_item_id", item.ID, "participant_id", id, "error", err)
			return s.toConsensus(ctx, updated)
		}
		s.health.ReportSuccess(ctx, id)

		if _, err := s.items.UpdateStatus(ctx, item.ID, workitem.StatusInProgress, workitem.StatusUpdate{}); err != nil {
			return nil, fmt.Errorf("route %s: %w", item.ID, err)
		}
		if s.metrics != nil {
			s.metrics.ItemsRouted.Add(ctx, 1)
		}
		return &RouteResult{WorkItemID: item.ID, Mode: RouteDirect, AssignedTo: id, Score: r.Score}, nil
	}

	// Every qualifying executor is breaker-gated right now.
	return s.toConsensus(ctx, item)
}

func (s *RouterService) toConsensus(ctx context.Context, item *workitem.WorkItem) (*RouteResult, error) {
	d, err := s.consensus.Decide(ctx, item.ID)
	if err != nil {
		return &RouteResult{WorkItemID: item.ID, Mode: RouteConsensus, Decision: d}, err
	}
	return &RouteResult{WorkItemID: item.ID, Mode: RouteConsensus, Decision: d}, nil
}

func (s *RouterService) block(ctx context.Context, item *workitem.WorkItem) (*RouteResult, error) {
	if _, err := s.items.UpdateStatus(ctx, item.ID, workitem.StatusBlocked, workitem.StatusUpdate{
		Reason: "no capable participant",
	}); err != nil {
		return nil, fmt.Errorf("route %s: %w", item.ID, err)
	}
	if s.metrics != nil {
		s.metrics.ItemsBlocked.Add(ctx, 1)
	}
	return &RouteResult{WorkItemID: item.ID, Mode: RouteBlocked}, fmt.Errorf("route %s: %w", item.ID, domain.ErrNoCapableParticipant)
}
