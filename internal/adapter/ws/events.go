package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventWorkItemStatus    = "workitem.status"
	EventDecisionCreated   = "decision.created"
	EventParticipantHealth = "participant.health"
)

// WorkItemStatusEvent is broadcast when a work item's status changes.
type WorkItemStatusEvent struct {
	WorkItemID string  `json:"work_item_id"`
	Kind       string  `json:"kind"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	AssignedTo string  `json:"assigned_to,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// DecisionCreatedEvent is broadcast when a consensus round completes or a
// manual override is recorded.
type DecisionCreatedEvent struct {
	DecisionID     string  `json:"decision_id"`
	WorkItemID     string  `json:"work_item_id"`
	Outcome        string  `json:"outcome"`
	AgreementScore float64 `json:"agreement_score"`
	QuorumMet      bool    `json:"quorum_met"`
	Accepted       bool    `json:"accepted"`
	Source         string  `json:"source"`
}

// ParticipantHealthEvent is broadcast when a participant's breaker state or
// weight changes.
type ParticipantHealthEvent struct {
	ParticipantID string  `json:"participant_id"`
	Health        string  `json:"health"`
	Weight        float64 `json:"weight"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
