package calls

import (
	"errors"
	"fmt"
	"time"
)

// Leg is one directed attempt to connect a single party.
//
// Lifecycle invariant: a Leg is owned by exactly one campaign attempt and is
// dropped from memory once that attempt concludes. LegID is generated before
// origination and never reused.
//
// Timestamps are set at most once each and are monotonically ordered:
// CreatedAt <= AnsweredAt <= EndedAt.
type Leg struct {
	LegID       string   `json:"leg_id"`
	Role        LegRole  `json:"role"`
	Destination string   `json:"destination"`
	State       LegState `json:"state"`

	CreatedAt  time.Time `json:"created_at"`
	AnsweredAt time.Time `json:"answered_at,omitempty"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
}

type LegRole string

const (
	LegRoleAgent LegRole = "agent"
	LegRoleLead  LegRole = "lead"
)

type LegState string

const (
	LegStateCreated  LegState = "created"
	LegStateRinging  LegState = "ringing"
	LegStateAnswered LegState = "answered"
	LegStateTimedOut LegState = "timed_out"
	LegStateBridged  LegState = "bridged"
	LegStateKilled   LegState = "killed"
	LegStateHungUp   LegState = "hung_up"
)

var ErrInvalidTransition = errors.New("calls: invalid leg transition")

// allowed lists every legal edge of the leg state machine.
// Killed and HungUp are reachable from any live state because cleanup and
// remote hangups can happen at any point.
var allowed = map[LegState][]LegState{
	LegStateCreated:  {LegStateRinging, LegStateAnswered, LegStateTimedOut, LegStateKilled, LegStateHungUp},
	LegStateRinging:  {LegStateAnswered, LegStateTimedOut, LegStateKilled, LegStateHungUp},
	LegStateAnswered: {LegStateBridged, LegStateKilled, LegStateHungUp},
	LegStateTimedOut: {LegStateKilled, LegStateHungUp},
	LegStateBridged:  {LegStateKilled, LegStateHungUp},
}

// NewLeg returns a leg in the Created state.
func NewLeg(legID string, role LegRole, destination string, now time.Time) *Leg {
	return &Leg{
		LegID:       legID,
		Role:        role,
		Destination: destination,
		State:       LegStateCreated,
		CreatedAt:   now.UTC(),
	}
}

// Terminal reports whether the leg can no longer carry media.
func (s LegState) Terminal() bool {
	return s == LegStateKilled || s == LegStateHungUp
}

// Live reports whether the leg still needs supervision (not terminal).
func (l *Leg) Live() bool {
	return l != nil && !l.State.Terminal()
}

// Transition moves the leg to next.
//
// Transitions are idempotent: moving to the current state is a no-op and
// returns nil, so duplicate answer/park notifications never re-trigger work.
func (l *Leg) Transition(next LegState, now time.Time) error {
	if l.State == next {
		return nil
	}
	ok := false
	for _, s := range allowed[l.State] {
		if s == next {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.State, next)
	}

	now = now.UTC()
	if now.Before(l.CreatedAt) {
		now = l.CreatedAt
	}
	switch next {
	case LegStateAnswered:
		if l.AnsweredAt.IsZero() {
			l.AnsweredAt = now
		}
	case LegStateKilled, LegStateHungUp:
		if l.EndedAt.IsZero() {
			if !l.AnsweredAt.IsZero() && now.Before(l.AnsweredAt) {
				now = l.AnsweredAt
			}
			l.EndedAt = now
		}
	}
	l.State = next
	return nil
}
