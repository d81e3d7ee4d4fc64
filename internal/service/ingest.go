package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
)

// IngestService turns planner output into stored work items. Planners
// reference dependencies by index into their own batch; ingestion resolves
// those to ids and validates the batch as a whole before anything is written.
type IngestService struct {
	items *WorkItemService
}

// NewIngestService creates an IngestService.
func NewIngestService(items *WorkItemService) *IngestService {
	return &IngestService{items: items}
}

// Submit inserts a batch of proposed work items under an optional parent.
// DependsOn indices must point inside the batch and form a DAG; a rejected
// batch leaves the store unchanged. Returns the new ids in batch order.
func (s *IngestService) Submit(ctx context.Context, parentID string, proposed []workitem.ProposedItem) ([]string, error) {
	if len(proposed) == 0 {
		return nil, fmt.Errorf("submit batch: no items")
	}

	if parentID != "" {
		if _, err := s.items.Get(ctx, parentID); err != nil {
			return nil, fmt.Errorf("submit batch: parent %s: %w", parentID, err)
		}
	}

	for i, p := range proposed {
		if !workitem.ValidKind(p.Kind) {
			return nil, fmt.Errorf("submit batch: item %d: unknown kind %q", i, p.Kind)
		}
		for _, dep := range p.DependsOn {
			if dep < 0 || dep >= len(proposed) {
				return nil, fmt.Errorf("submit batch: item %d: dependency index %d out of range", i, dep)
			}
			if dep == i {
				return nil, fmt.Errorf("submit batch: item %d depends on itself: %w", i, domain.ErrDependencyCycle)
			}
		}
	}

	order, err := topoOrder(proposed)
	if err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}

	ids := make([]string, len(proposed))
	for i := range proposed {
		ids[i] = uuid.NewString()
	}

	// Insert in dependency order so every referenced id already exists.
	for _, i := range order {
		p := proposed[i]
		deps := make([]string, len(p.DependsOn))
		for j, dep := range p.DependsOn {
			deps[j] = ids[dep]
		}
		item := &workitem.WorkItem{
			ID:          ids[i],
			Kind:        p.Kind,
			Title:       p.Title,
			Description: p.Description,
			ParentID:    parentID,
			DependsOn:   deps,
			Tags:        p.Tags,
		}
		if _, err := s.items.Insert(ctx, item); err != nil {
			return nil, fmt.Errorf("submit batch: item %d: %w", i, err)
		}
	}
	return ids, nil
}

// topoOrder returns batch indices in dependency-first order, or
// ErrDependencyCycle if the batch graph has a cycle.
func topoOrder(proposed []workitem.ProposedItem) ([]int, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(proposed))
	order := make([]int, 0, len(proposed))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return domain.ErrDependencyCycle
		}
		state[i] = visiting
		for _, dep := range proposed[i].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[i] = done
		order = append(order, i)
		return nil
	}

	for i := range proposed {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}
