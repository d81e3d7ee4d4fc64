// Package store defines the document store port (interface).
//
// The engine requires only a key-value/document contract over three logical
// collections: work_items, participants, decisions. Any backend that can
// address documents by primary id and perform a conditional status swap can
// implement it.
package store

import (
	"context"

	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
)

// Store is the port interface for persistent engine state.
type Store interface {
	// Work items
	InsertWorkItem(ctx context.Context, item *workitem.WorkItem) error
	GetWorkItem(ctx context.Context, id string) (*workitem.WorkItem, error)
	ListWorkItems(ctx context.Context, filter workitem.Filter) ([]workitem.WorkItem, error)

	// SwapStatus transitions a work item from the expected current status to a
	// new one, applying upd in the same step. It returns domain.ErrConflict
	// when the stored status no longer matches from, so concurrent transitions
	// on the same item serialize instead of overwriting each other.
	SwapStatus(ctx context.Context, id string, from, to workitem.Status, upd workitem.StatusUpdate) (*workitem.WorkItem, error)

	// Participants
	SaveParticipant(ctx context.Context, p *participant.Participant) error
	GetParticipant(ctx context.Context, id string) (*participant.Participant, error)
	ListParticipants(ctx context.Context) ([]participant.Participant, error)

	// UpdateParticipant applies mutate under the participant's lock. The
	// closure sees the current document and its changes are persisted
	// atomically with respect to other UpdateParticipant calls.
	UpdateParticipant(ctx context.Context, id string, mutate func(*participant.Participant) error) error

	// CountOpenItems returns how many non-terminal work items are assigned to
	// the participant.
	CountOpenItems(ctx context.Context, participantID string) (int, error)

	// Decisions (append-only)
	InsertDecision(ctx context.Context, d *decision.Decision) error
	ListDecisionsByWorkItem(ctx context.Context, workItemID string) ([]decision.Decision, error)
}
