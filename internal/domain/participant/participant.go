// Package participant defines the Participant domain entity.
package participant

import "time"

// Role determines what a participant may be asked to do.
type Role string

const (
	RoleDecider  Role = "decider"
	RoleExecutor Role = "executor"
	RoleBoth     Role = "both"
)

// ValidRole reports whether r is a known participant role.
func ValidRole(r Role) bool {
	switch r {
	case RoleDecider, RoleExecutor, RoleBoth:
		return true
	}
	return false
}

// Decides reports whether the participant can vote in consensus rounds.
func (r Role) Decides() bool { return r == RoleDecider || r == RoleBoth }

// Executes reports whether the participant can be assigned work directly.
func (r Role) Executes() bool { return r == RoleExecutor || r == RoleBoth }

// Health is the circuit breaker state of a participant.
type Health string

const (
	HealthClosed   Health = "closed"
	HealthOpen     Health = "open"
	HealthHalfOpen Health = "half_open"
)

// Participant is a registered decision-maker or executor with capability tags
// and a trust weight. Weight is adjusted continuously by the health monitor;
// it decays when the participant lands in the losing minority of a decision
// and recovers on success, bounded to [0, maxWeight].
type Participant struct {
	ID         string    `json:"id"`
	DomainTags []string  `json:"domain_tags"`
	Role       Role      `json:"role"`
	Weight     float64   `json:"weight"`
	Health     Health    `json:"health"`
	Disabled   bool      `json:"disabled,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Available reports whether the participant may receive routing or quorum
// requests. Open breakers and soft-disabled participants are excluded.
func (p *Participant) Available() bool {
	return !p.Disabled && p.Health != HealthOpen
}

// RegisterRequest holds the fields needed to register a participant.
type RegisterRequest struct {
	ID         string   `json:"id"`
	DomainTags []string `json:"domain_tags"`
	Role       Role     `json:"role"`
	Weight     float64  `json:"weight,omitempty"`
}

// Ranked pairs a participant with its capability match score for a tag set.
type Ranked struct {
	Participant Participant `json:"participant"`
	Score       float64     `json:"score"`
	OpenItems   int         `json:"open_items"`
}
