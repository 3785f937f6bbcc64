package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
)

// Controller is the FreeSWITCH-backed LegController.
type Controller struct {
	cmd     Commander
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewController builds a controller over cmd. limiter paces originations
// toward the trunk; nil disables pacing.
func NewController(cmd Commander, limiter *rate.Limiter, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{cmd: cmd, limiter: limiter, log: log}
}

var _ LegController = (*Controller)(nil)

func (c *Controller) Originate(ctx context.Context, destination, legID string, opts OriginateOptions) (OriginateResult, error) {
	if strings.TrimSpace(destination) == "" || legID == "" {
		return OriginateResult{Outcome: OriginateRejected, Reason: "destination and leg_id required"}, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return OriginateResult{Outcome: OriginateRejected, Reason: "originate pacing: " + err.Error()}, nil
		}
	}

	cmd := BuildOriginate(destination, legID, opts)
	c.log.Debug("originate", "leg_id", legID, "cmd", cmd)

	res, err := c.cmd.Exec(ctx, cmd)
	if err != nil {
		return OriginateResult{Outcome: OriginateRejected, Reason: err.Error()}, transportErr(err)
	}
	if !isAck(res) {
		return OriginateResult{Outcome: OriginateRejected, Reason: strings.TrimSpace(res)}, nil
	}
	return OriginateResult{Outcome: OriginateAccepted}, nil
}

func (c *Controller) Bridge(ctx context.Context, legIDA, legIDB string) (BridgeResult, error) {
	cmd := BuildBridge(legIDA, legIDB)
	c.log.Debug("bridge", "leg_id", legIDA, "peer_leg_id", legIDB)

	res, err := c.cmd.Exec(ctx, cmd)
	if err != nil {
		return BridgeResult{Outcome: BridgeFailed, Reason: err.Error()}, transportErr(err)
	}
	if !isAck(res) {
		return BridgeResult{Outcome: BridgeFailed, Reason: strings.TrimSpace(res)}, nil
	}
	return BridgeResult{Outcome: BridgeBridged}, nil
}

func (c *Controller) Kill(ctx context.Context, legID string) (KillResult, error) {
	res, err := c.cmd.Exec(ctx, BuildKill(legID))
	if err != nil {
		return KillResult{}, transportErr(err)
	}
	if isAck(res) {
		return KillResult{Outcome: KillKilled}, nil
	}
	if !isMissingChannel(res) {
		c.log.Warn("unexpected uuid_kill reply", "leg_id", legID, "reply", strings.TrimSpace(res))
	}
	return KillResult{Outcome: KillAlreadyGone, Reason: strings.TrimSpace(res)}, nil
}

func transportErr(err error) error {
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
