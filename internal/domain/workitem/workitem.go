// Package workitem defines the WorkItem domain entity and its status machine.
package workitem

import "time"

// Kind is the level of a work item in the Objective → Epic → Task → Subtask hierarchy.
type Kind string

const (
	KindObjective Kind = "objective"
	KindEpic      Kind = "epic"
	KindTask      Kind = "task"
	KindSubtask   Kind = "subtask"
)

// ValidKind reports whether k is a known work item kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindObjective, KindEpic, KindTask, KindSubtask:
		return true
	}
	return false
}

// Strategic reports whether items of this kind always require multi-party
// consensus instead of direct assignment.
func (k Kind) Strategic() bool {
	return k == KindObjective || k == KindEpic
}

// Status represents the current state of a work item.
type Status string

const (
	StatusPending           Status = "pending"
	StatusRouted            Status = "routed"
	StatusInProgress        Status = "in_progress"
	StatusBlocked           Status = "blocked"
	StatusAwaitingConsensus Status = "awaiting_consensus"
	StatusDone              Status = "done"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// transitions is the legal status transition table. Cancellation is allowed
// from any status and handled separately in CanTransition.
var transitions = map[Status][]Status{
	StatusPending:           {StatusRouted, StatusAwaitingConsensus, StatusBlocked},
	StatusRouted:            {StatusInProgress, StatusAwaitingConsensus},
	StatusInProgress:        {StatusDone, StatusBlocked},
	StatusAwaitingConsensus: {StatusDone, StatusFailed},
	StatusBlocked:           {StatusInProgress},
}

// CanTransition reports whether from → to is a legal status transition.
// Any status may transition to cancelled. A same-status transition is not
// legal here; callers treat it as an idempotent no-op before consulting
// this table.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Open reports whether a work item in this status still counts against a
// participant's open-item load.
func (s Status) Open() bool {
	return !s.Terminal()
}

// LeavesWaiting reports whether a transition from s requires all dependencies
// to be done first.
func (s Status) LeavesWaiting() bool {
	return s == StatusPending || s == StatusBlocked
}

// WorkItem represents a node in the Objective → Epic → Task → Subtask hierarchy.
// Children are derived from ParentID, never stored redundantly. Items are never
// deleted; they are transitioned to cancelled and preserved for audit.
type WorkItem struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	ParentID    string    `json:"parent_id,omitempty"`
	DependsOn   []string  `json:"depends_on,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusUpdate carries the optional fields applied alongside a status transition.
type StatusUpdate struct {
	AssignedTo *string
	Confidence *float64
	Reason     string
}

// Filter selects work items in list queries. Zero values match everything.
type Filter struct {
	Kind       Kind   `json:"kind,omitempty"`
	Status     Status `json:"status,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

// ProposedItem is the planner's shape for a candidate work item. DependsOn
// refers to other proposed items by index within the same submission.
type ProposedItem struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Kind        Kind     `json:"kind"`
	DependsOn   []int    `json:"depends_on,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}
