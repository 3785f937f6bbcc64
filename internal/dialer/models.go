package dialer

import (
	"time"

	"freeswitch-bridge/internal/calls"
	"freeswitch-bridge/internal/telephony"
)

// Disposition is the final categorical result of a campaign attempt.
type Disposition string

const (
	DispositionInProgress Disposition = "in-progress"
	DispositionBridged    Disposition = "bridged"
	DispositionUnanswered Disposition = "unanswered"
	DispositionError      Disposition = "error"
)

// Policy is the retry/timeout policy applied to every campaign attempt.
type Policy struct {
	MaxRounds int
	AgentRing time.Duration
	LeadRing  time.Duration

	CallerID       string
	MediaTimeout   time.Duration
	ContinueOnFail bool
}

func (p Policy) withDefaults() Policy {
	out := p
	if out.MaxRounds <= 0 {
		out.MaxRounds = 1
	}
	if out.AgentRing <= 0 {
		out.AgentRing = 20 * time.Second
	}
	if out.LeadRing <= 0 {
		out.LeadRing = 25 * time.Second
	}
	return out
}

// DialRequest is one inbound request: a lead plus ordered agent candidates.
// Destinations are full dial strings.
type DialRequest struct {
	WorkspaceID string
	// CampaignID is generated when empty.
	CampaignID string

	Lead   string
	Agents []string
}

// Result is the only thing callers ever see of a campaign attempt.
// Per-leg failures are visible through the attempt history only.
type Result struct {
	CampaignID  string      `json:"campaign_id"`
	Disposition Disposition `json:"disposition"`
	Agent       string      `json:"agent,omitempty"`
	RoundsTried int         `json:"rounds_tried,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}

// Attempt is one end-to-end execution of the dial policy.
//
// Invariant: at most one live agent leg and one live lead leg at any time.
// The attempt exclusively owns both legs until it concludes.
type Attempt struct {
	WorkspaceID string
	CampaignID  string
	Round       int

	AgentLeg *calls.Leg
	LeadLeg  *calls.Leg

	Disposition Disposition

	// hangups holds the hangup watch of every leg created for the current
	// agent candidate, keyed by legId.
	hangups map[string]*telephony.HangupWatch
}
