// Package decision defines the immutable Decision record produced by a
// consensus round or a manual override.
package decision

import "time"

// Source identifies how a decision was produced.
type Source string

const (
	SourceConsensus      Source = "consensus"
	SourceManualOverride Source = "manual-override"
)

// Proposal is a single participant's opinion in a consensus round.
type Proposal struct {
	ParticipantID string    `json:"participant_id"`
	Value         string    `json:"value"`
	Confidence    float64   `json:"confidence"`
	Weight        float64   `json:"weight"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Decision is an append-only record of a consensus outcome for one work item.
// Once written it is never mutated or deleted.
type Decision struct {
	ID             string     `json:"id"`
	WorkItemID     string     `json:"work_item_id"`
	Proposals      []Proposal `json:"proposals"`
	Outcome        string     `json:"outcome"`
	AgreementScore float64    `json:"agreement_score"`
	QuorumMet      bool       `json:"quorum_met"`
	Accepted       bool       `json:"accepted"`
	Source         Source     `json:"source"`
	Justification  string     `json:"justification,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
