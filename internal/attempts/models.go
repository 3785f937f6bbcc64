package attempts

import "time"

// Record is an immutable, append-only entry in the call-attempt history.
//
// Invariants:
// - Records are never updated or deleted.
// - CampaignID is always set; WorkspaceID scopes reads.
// - Recording is best-effort; the call flow never waits on it.
type Record struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id,omitempty" db:"workspace_id"`
	CampaignID  string `json:"campaign_id" db:"campaign_id"`

	Kind  Kind `json:"kind" db:"kind"`
	Round int  `json:"round,omitempty" db:"round"`
	Role  Role `json:"role" db:"role"`

	Destination string `json:"destination,omitempty" db:"destination"`
	LegID       string `json:"leg_id,omitempty" db:"leg_id"`
	PeerLegID   string `json:"peer_leg_id,omitempty" db:"peer_leg_id"`

	// Outcome is empty for attempt records.
	Outcome Outcome `json:"outcome,omitempty" db:"outcome"`
	Reason  string  `json:"reason,omitempty" db:"reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindAttempt Kind = "attempt"
	KindOutcome Kind = "outcome"
)

type Role string

const (
	RoleAgent    Role = "agent"
	RoleLead     Role = "lead"
	RoleBridge   Role = "bridge"
	RoleCampaign Role = "campaign"
)

type Outcome string

const (
	OutcomeOriginationFailed Outcome = "origination-failed"
	OutcomeNoAnswer          Outcome = "no-answer"
	OutcomeBridged           Outcome = "bridged"
	OutcomeBridgeFailed      Outcome = "bridge-failed"
	OutcomeUnanswered        Outcome = "unanswered"
	OutcomeError             Outcome = "error"
)

// Entry is what the orchestrator hands to the recorder.
// PeerLegID links a lead leg to the agent leg it was dialed for.
type Entry struct {
	WorkspaceID string
	CampaignID  string
	Round       int
	Role        Role
	Destination string
	LegID       string
	PeerLegID   string
	Outcome     Outcome
	Reason      string
}

// Summary aggregates the history of one campaign attempt.
type Summary struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	CampaignID  string `json:"campaign_id"`

	AgentAttempts int `json:"agent_attempts"`
	LeadAttempts  int `json:"lead_attempts"`
	RoundsTried   int `json:"rounds_tried"`

	NoAnswer          int `json:"no_answer"`
	OriginationFailed int `json:"origination_failed"`
	BridgeFailed      int `json:"bridge_failed"`
	Bridged           int `json:"bridged"`

	// Disposition is the campaign-level result, or "in-progress" while no
	// terminal record exists.
	Disposition string `json:"disposition"`
}
