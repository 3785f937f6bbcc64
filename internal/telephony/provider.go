package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Commander is the Command Channel boundary.
//
// Exec submits one command string and returns its textual result. Results are
// not correlated by the transport; callers inject their own identifiers
// (legId) into commands they need to match later.
type Commander interface {
	Exec(ctx context.Context, cmd string) (string, error)
}

// LegController translates orchestration intent into telephony commands.
//
// Rules:
// - No retries here. Retry policy lives entirely in internal/dialer.
// - Kill must be safe on a leg that already ended.
type LegController interface {
	Originate(ctx context.Context, destination, legID string, opts OriginateOptions) (OriginateResult, error)
	Bridge(ctx context.Context, legIDA, legIDB string) (BridgeResult, error)
	Kill(ctx context.Context, legID string) (KillResult, error)
}

// OriginateOptions are the policy-controlled call attributes sent with an
// origination. Zero values fall back to FreeSWITCH defaults where possible.
type OriginateOptions struct {
	RingTimeout  time.Duration
	CallerID     string
	MediaTimeout time.Duration

	// IgnoreEarlyMedia keeps the leg ringing through 183 progress so only a
	// real answer counts.
	IgnoreEarlyMedia bool
	// ContinueOnFail keeps the originate alive across gateway failures.
	ContinueOnFail bool
}

type OriginateOutcome string

const (
	OriginateAccepted OriginateOutcome = "accepted"
	OriginateRejected OriginateOutcome = "rejected"
)

type OriginateResult struct {
	Outcome OriginateOutcome `json:"outcome"`
	Reason  string           `json:"reason,omitempty"`
}

type BridgeOutcome string

const (
	BridgeBridged BridgeOutcome = "bridged"
	BridgeFailed  BridgeOutcome = "failed"
)

type BridgeResult struct {
	Outcome BridgeOutcome `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
}

type KillOutcome string

const (
	KillKilled      KillOutcome = "killed"
	KillAlreadyGone KillOutcome = "already_gone"
)

type KillResult struct {
	Outcome KillOutcome `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
}

var (
	// ErrTransport marks a Command Channel or Event Stream that is unusable.
	ErrTransport = errors.New("telephony: transport error")
	// ErrNotConnected is returned when no event socket session is up.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrTransport)
)
