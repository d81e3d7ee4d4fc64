package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/port/store"
)

// RegistryService manages the participant pool: registration, deregistration
// and capability-ranked lookup.
type RegistryService struct {
	store  store.Store
	health *HealthService // optional, live breaker state overrides stored health
}

// NewRegistryService creates a RegistryService. health may be nil, in which
// case the persisted health field is taken at face value.
func NewRegistryService(st store.Store, health *HealthService) *RegistryService {
	return &RegistryService{store: st, health: health}
}

// Register adds or re-enables a participant. Weight defaults to 1.0 and
// health starts closed.
func (s *RegistryService) Register(ctx context.Context, req participant.RegisterRequest) (*participant.Participant, error) {
	if req.Role != "" && !participant.ValidRole(req.Role) {
		return nil, fmt.Errorf("register participant: unknown role %q", req.Role)
	}

	p := &participant.Participant{
		ID:         req.ID,
		DomainTags: req.DomainTags,
		Role:       req.Role,
		Weight:     req.Weight,
		Health:     participant.HealthClosed,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = participant.RoleBoth
	}
	if p.Weight <= 0 {
		p.Weight = 1.0
	}

	if err := s.store.SaveParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("register participant %s: %w", p.ID, err)
	}
	return p, nil
}

// Deregister disables a participant so it receives no further work. A
// participant with open assigned items cannot be removed.
func (s *RegistryService) Deregister(ctx context.Context, id string) error {
	open, err := s.store.CountOpenItems(ctx, id)
	if err != nil {
		return fmt.Errorf("deregister participant %s: %w", id, err)
	}
	if open > 0 {
		return fmt.Errorf("participant %s has %d open items: %w", id, open, domain.ErrParticipantBusy)
	}

	err = s.store.UpdateParticipant(ctx, id, func(p *participant.Participant) error {
		p.Disabled = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("deregister participant %s: %w", id, err)
	}
	return nil
}

// Get returns a participant by id.
func (s *RegistryService) Get(ctx context.Context, id string) (*participant.Participant, error) {
	return s.store.GetParticipant(ctx, id)
}

// List returns all registered participants, including disabled ones.
func (s *RegistryService) List(ctx context.Context) ([]participant.Participant, error) {
	return s.store.ListParticipants(ctx)
}

// ListByCapability ranks available participants against the required tags.
// The score is the Jaccard similarity between the participant's capabilities
// and the tags, multiplied by the participant's weight. Ties break toward
// fewer open assigned items, then lexicographically smaller id. Disabled
// participants and participants with an open breaker are excluded. When role
// is non-empty only participants serving that role are considered.
func (s *RegistryService) ListByCapability(ctx context.Context, tags []string, role participant.Role) ([]participant.Ranked, error) {
	all, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	ranked := make([]participant.Ranked, 0, len(all))
	for i := range all {
		p := all[i]
		if s.health != nil {
			p.Health = s.health.StateOf(p.ID)
		}
		if !p.Available() {
			continue
		}
		if !roleMatches(p.Role, role) {
			continue
		}

		open, err := s.store.CountOpenItems(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("count open items of %s: %w", p.ID, err)
		}
		ranked = append(ranked, participant.Ranked{
			Participant: p,
			Score:       jaccard(p.DomainTags, tags) * p.Weight,
			OpenItems:   open,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].OpenItems != ranked[j].OpenItems {
			return ranked[i].OpenItems < ranked[j].OpenItems
		}
		return ranked[i].Participant.ID < ranked[j].Participant.ID
	})
	return ranked, nil
}

func roleMatches(have, want participant.Role) bool {
	switch want {
	case "":
		return true
	case participant.RoleDecider:
		return have.Decides()
	case participant.RoleExecutor:
		return have.Executes()
	}
	return have == want
}

// jaccard computes |a ∩ b| / |a ∪ b| over the two tag sets. Two empty sets
// score zero, not one: a participant with no capabilities matches nothing.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}

	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
