// Package audit defines the append-only audit trail entities.
package audit

import (
	"encoding/json"
	"time"
)

// Action identifies the kind of audited event.
type Action string

const (
	ActionWorkItemInserted Action = "workitem.inserted"
	ActionStatusChanged    Action = "workitem.status_changed"
	ActionDecisionRecorded Action = "decision.recorded"
	ActionDecisionForced   Action = "decision.forced"
	ActionBreakerOpened    Action = "participant.breaker_opened"
	ActionBreakerClosed    Action = "participant.breaker_closed"
)

// Entry is a single immutable entry in the audit trail. Entries are never
// mutated or deleted; retention is an external concern.
type Entry struct {
	ID            string          `json:"id"`
	WorkItemID    string          `json:"work_item_id,omitempty"`
	ParticipantID string          `json:"participant_id,omitempty"`
	DecisionID    string          `json:"decision_id,omitempty"`
	Action        Action          `json:"action"`
	Source        string          `json:"source,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Filter controls which audit entries are returned. Zero values match everything.
type Filter struct {
	WorkItemID    string     `json:"work_item_id,omitempty"`
	ParticipantID string     `json:"participant_id,omitempty"`
	Action        Action     `json:"action,omitempty"`
	After         *time.Time `json:"after,omitempty"`
	Before        *time.Time `json:"before,omitempty"`
}
