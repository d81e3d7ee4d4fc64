package messagequeue

// WorkItemStatusPayload is the schema for workitems.status messages.
type WorkItemStatusPayload struct {
	WorkItemID string `json:"work_item_id"`
	Kind       string `json:"kind"`
	From       string `json:"from"`
	To         string `json:"to"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// DecisionCreatedPayload is the schema for decisions.created messages.
type DecisionCreatedPayload struct {
	DecisionID     string  `json:"decision_id"`
	WorkItemID     string  `json:"work_item_id"`
	Outcome        string  `json:"outcome"`
	AgreementScore float64 `json:"agreement_score"`
	QuorumMet      bool    `json:"quorum_met"`
	Accepted       bool    `json:"accepted"`
	Source         string  `json:"source"`
}

// ParticipantHealthPayload is the schema for participants.health messages.
type ParticipantHealthPayload struct {
	ParticipantID string  `json:"participant_id"`
	Health        string  `json:"health"`
	Weight        float64 `json:"weight"`
}
