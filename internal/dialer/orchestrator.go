package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"freeswitch-bridge/internal/attempts"
	"freeswitch-bridge/internal/calls"
	"freeswitch-bridge/internal/telephony"

	"github.com/google/uuid"
)

// Answers registers answer and hangup interest for a leg before it is
// originated.
type Answers interface {
	Watch(legID string) *telephony.Watcher
	WatchHangup(legID string) *telephony.HangupWatch
}

// Recorder receives the attempt history. Implementations must not block.
type Recorder interface {
	LogAttempt(ctx context.Context, e attempts.Entry)
	LogOutcome(ctx context.Context, e attempts.Entry)
}

// Orchestrator sequences agent and lead legs: ring an agent, wait for the
// answer, ring the lead, wait for that answer, then bridge. Any failure
// cleans up the legs already created and moves to the next candidate.
//
// One Orchestrator serves every campaign attempt concurrently; per-attempt
// state lives in Attempt values owned by a single Dial call.
type Orchestrator struct {
	legs     telephony.LegController
	answers  Answers
	recorder Recorder
	policy   Policy
	log      *slog.Logger

	newID       func() string
	clock       func() time.Time
	killTimeout time.Duration

	cleanup sync.WaitGroup
}

var ErrInvalidRequest = errors.New("dialer: invalid request")

func NewOrchestrator(legs telephony.LegController, answers Answers, recorder Recorder, policy Policy, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		legs:        legs,
		answers:     answers,
		recorder:    recorder,
		policy:      policy.withDefaults(),
		log:         log,
		newID:       uuid.NewString,
		clock:       time.Now,
		killTimeout: 10 * time.Second,
	}
}

// Policy returns the effective policy after defaults.
func (o *Orchestrator) Policy() Policy { return o.policy }

// Wait blocks until every cleanup kill issued so far has completed.
func (o *Orchestrator) Wait() { o.cleanup.Wait() }

// legStep is how one ring phase ended.
type legStep int

const (
	stepAnswered legStep = iota
	stepRejected
	stepNoAnswer
)

// Dial runs the dial policy for one request and returns its disposition.
// Only a TransportError (or ctx ending) yields DispositionError; every
// other failure is absorbed into the retry loop.
func (o *Orchestrator) Dial(ctx context.Context, req DialRequest) Result {
	att := &Attempt{
		WorkspaceID: req.WorkspaceID,
		CampaignID:  req.CampaignID,
		Disposition: DispositionInProgress,
	}
	if att.CampaignID == "" {
		att.CampaignID = o.newID()
	}
	log := o.log.With("campaign_id", att.CampaignID)

	if err := validate(req); err != nil {
		o.recordOutcome(ctx, att, attempts.RoleCampaign, "", nil, "", attempts.OutcomeError, err.Error())
		att.Disposition = DispositionError
		return Result{CampaignID: att.CampaignID, Disposition: DispositionError, Reason: err.Error()}
	}

	for round := 1; round <= o.policy.MaxRounds; round++ {
		att.Round = round
		log.Info("starting agent round", "round", round, "agents", len(req.Agents))

		for _, agent := range req.Agents {
			if err := ctx.Err(); err != nil {
				return o.abort(ctx, att, log, err)
			}
			bridged, err := o.tryAgent(ctx, att, log.With("round", round), agent, req.Lead)
			if err != nil {
				return o.abort(ctx, att, log, err)
			}
			if bridged {
				att.Disposition = DispositionBridged
				o.release(att)
				return Result{CampaignID: att.CampaignID, Disposition: DispositionBridged, Agent: agent, RoundsTried: round}
			}
		}
	}

	log.Info("all agent candidates exhausted", "rounds", o.policy.MaxRounds)
	o.recordOutcome(ctx, att, attempts.RoleCampaign, "", nil, "", attempts.OutcomeUnanswered, "")
	att.Disposition = DispositionUnanswered
	o.release(att)
	return Result{CampaignID: att.CampaignID, Disposition: DispositionUnanswered}
}

// tryAgent runs one agent candidate through steps 1-7 of the policy.
func (o *Orchestrator) tryAgent(ctx context.Context, att *Attempt, log *slog.Logger, agentDest, leadDest string) (bool, error) {
	agent := calls.NewLeg(o.newID(), calls.LegRoleAgent, agentDest, o.clock())
	att.AgentLeg = agent
	att.LeadLeg = nil
	att.hangups = map[string]*telephony.HangupWatch{}
	defer stopHangups(att)
	log = log.With("agent_leg_id", agent.LegID)

	o.recordAttempt(ctx, att, attempts.RoleAgent, agent, "")
	log.Info("originating agent", "destination", agentDest)

	step, err := o.ring(ctx, att, log, agent, o.policy.AgentRing, "")
	if err != nil || step != stepAnswered {
		return false, err
	}

	// The lead is only ever rung once an agent is live.
	lead := calls.NewLeg(o.newID(), calls.LegRoleLead, leadDest, o.clock())
	att.LeadLeg = lead
	log = log.With("lead_leg_id", lead.LegID)

	o.recordAttempt(ctx, att, attempts.RoleLead, lead, agent.LegID)
	log.Info("originating lead", "destination", leadDest)

	step, err = o.ring(ctx, att, log, lead, o.policy.LeadRing, agent.LegID)
	if err != nil {
		return false, err
	}
	if step != stepAnswered {
		// Never leave an agent connected with nobody to talk to.
		o.kill(att, log, agent, "lead not answered")
		return false, nil
	}

	o.observeHangup(att, log, agent)
	o.observeHangup(att, log, lead)
	if !agent.Live() || !lead.Live() {
		reason := "agent hung up before bridge"
		if !lead.Live() {
			reason = "lead hung up before bridge"
		}
		log.Warn("bridge skipped", "reason", reason)
		o.kill(att, log, lead, reason)
		o.kill(att, log, agent, reason)
		o.recordOutcome(ctx, att, attempts.RoleBridge, agentDest, agent, lead.LegID, attempts.OutcomeBridgeFailed, reason)
		return false, nil
	}

	log.Info("bridging agent and lead")
	res, err := o.legs.Bridge(ctx, agent.LegID, lead.LegID)
	if err != nil {
		return false, err
	}
	if res.Outcome != telephony.BridgeBridged {
		log.Warn("bridge failed", "reason", res.Reason)
		o.kill(att, log, lead, "bridge failed")
		o.kill(att, log, agent, "bridge failed")
		o.recordOutcome(ctx, att, attempts.RoleBridge, agentDest, agent, lead.LegID, attempts.OutcomeBridgeFailed, res.Reason)
		return false, nil
	}

	now := o.clock()
	o.transition(log, agent, calls.LegStateBridged, now)
	o.transition(log, lead, calls.LegStateBridged, now)
	o.recordOutcome(ctx, att, attempts.RoleBridge, agentDest, agent, lead.LegID, attempts.OutcomeBridged, "")
	log.Info("agent and lead bridged")
	return true, nil
}

// ring originates leg and waits for it to become ready. Interest in the
// leg's answer and hangup is registered before the originate is sent; the
// hangup watch stays registered until the candidate is done.
func (o *Orchestrator) ring(ctx context.Context, att *Attempt, log *slog.Logger, leg *calls.Leg, window time.Duration, peerLegID string) (legStep, error) {
	role := attempts.Role(leg.Role)

	w := o.answers.Watch(leg.LegID)
	defer w.Stop()
	att.hangups[leg.LegID] = o.answers.WatchHangup(leg.LegID)

	res, err := o.legs.Originate(ctx, leg.Destination, leg.LegID, telephony.OriginateOptions{
		RingTimeout:      window,
		CallerID:         o.policy.CallerID,
		MediaTimeout:     o.policy.MediaTimeout,
		IgnoreEarlyMedia: true,
		ContinueOnFail:   o.policy.ContinueOnFail,
	})
	if err != nil {
		return stepRejected, err
	}
	if res.Outcome != telephony.OriginateAccepted {
		log.Warn("origination rejected", "role", leg.Role, "reason", res.Reason)
		o.transition(log, leg, calls.LegStateHungUp, o.clock())
		o.recordOutcome(ctx, att, role, leg.Destination, leg, peerLegID, attempts.OutcomeOriginationFailed, res.Reason)
		if peerLegID != "" && att.AgentLeg != nil {
			o.kill(att, log, att.AgentLeg, "lead origination rejected")
		}
		return stepRejected, nil
	}
	o.transition(log, leg, calls.LegStateRinging, o.clock())

	answered, err := w.Wait(ctx, window)
	if err != nil {
		return stepNoAnswer, err
	}
	if !answered {
		if o.observeHangup(att, log, leg) {
			o.recordOutcome(ctx, att, role, leg.Destination, leg, peerLegID, attempts.OutcomeNoAnswer, "hung up while ringing")
			return stepNoAnswer, nil
		}
		log.Info("no answer", "role", leg.Role, "window", window.String())
		o.transition(log, leg, calls.LegStateTimedOut, o.clock())
		o.recordOutcome(ctx, att, role, leg.Destination, leg, peerLegID, attempts.OutcomeNoAnswer, "")
		o.kill(att, log, leg, "no answer")
		return stepNoAnswer, nil
	}

	o.transition(log, leg, calls.LegStateAnswered, o.clock())
	log.Info("leg answered", "role", leg.Role)
	return stepAnswered, nil
}

// abort ends the attempt on a fatal error, killing any leg still live.
func (o *Orchestrator) abort(ctx context.Context, att *Attempt, log *slog.Logger, err error) Result {
	log.Error("campaign attempt aborted", "round", att.Round, "err", err)
	for _, leg := range []*calls.Leg{att.LeadLeg, att.AgentLeg} {
		if leg.Live() {
			o.kill(att, log, leg, "attempt aborted")
		}
	}
	reason := err.Error()
	if errors.Is(err, telephony.ErrTransport) {
		reason = "transport error: " + reason
	}
	o.recordOutcome(ctx, att, attempts.RoleCampaign, "", nil, "", attempts.OutcomeError, reason)
	att.Disposition = DispositionError
	o.release(att)
	return Result{CampaignID: att.CampaignID, Disposition: DispositionError, Reason: reason}
}

// kill marks leg killed and issues the kill in the background. The outcome
// is logged; nothing waits on it before moving on. A leg already seen
// hanging up is marked HungUp instead and left alone.
func (o *Orchestrator) kill(att *Attempt, log *slog.Logger, leg *calls.Leg, why string) {
	if leg == nil || !leg.Live() {
		return
	}
	if o.observeHangup(att, log, leg) {
		return
	}
	o.transition(log, leg, calls.LegStateKilled, o.clock())

	legID := leg.LegID
	o.cleanup.Add(1)
	go func() {
		defer o.cleanup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.killTimeout)
		defer cancel()

		res, err := o.legs.Kill(ctx, legID)
		if err != nil {
			log.Warn("kill failed", "leg_id", legID, "why", why, "err", err)
			return
		}
		log.Debug("leg killed", "leg_id", legID, "why", why, "outcome", res.Outcome)
	}()
}

// observeHangup moves leg to HungUp when the Event Stream has reported its
// hangup, and reports whether it did.
func (o *Orchestrator) observeHangup(att *Attempt, log *slog.Logger, leg *calls.Leg) bool {
	if leg == nil || !leg.Live() {
		return false
	}
	hw, ok := att.hangups[leg.LegID]
	if !ok {
		return false
	}
	cause, gone := hw.HungUp()
	if !gone {
		return false
	}
	log.Info("leg hung up", "leg_id", leg.LegID, "role", leg.Role, "cause", cause)
	o.transition(log, leg, calls.LegStateHungUp, o.clock())
	return true
}

// stopHangups deregisters the candidate's hangup watches. Hangups already
// observed stay readable for abort.
func stopHangups(att *Attempt) {
	for _, hw := range att.hangups {
		hw.Stop()
	}
}

func (o *Orchestrator) transition(log *slog.Logger, leg *calls.Leg, next calls.LegState, now time.Time) {
	if err := leg.Transition(next, now); err != nil {
		log.Warn("leg transition refused", "leg_id", leg.LegID, "err", err)
	}
}

// release drops the legs from working memory once the attempt concludes.
func (o *Orchestrator) release(att *Attempt) {
	att.AgentLeg = nil
	att.LeadLeg = nil
	att.hangups = nil
}

func (o *Orchestrator) recordAttempt(ctx context.Context, att *Attempt, role attempts.Role, leg *calls.Leg, peerLegID string) {
	if o.recorder == nil {
		return
	}
	o.recorder.LogAttempt(ctx, attempts.Entry{
		WorkspaceID: att.WorkspaceID,
		CampaignID:  att.CampaignID,
		Round:       att.Round,
		Role:        role,
		Destination: leg.Destination,
		LegID:       leg.LegID,
		PeerLegID:   peerLegID,
	})
}

func (o *Orchestrator) recordOutcome(ctx context.Context, att *Attempt, role attempts.Role, destination string, leg *calls.Leg, peerLegID string, outcome attempts.Outcome, reason string) {
	if o.recorder == nil {
		return
	}
	e := attempts.Entry{
		WorkspaceID: att.WorkspaceID,
		CampaignID:  att.CampaignID,
		Round:       att.Round,
		Role:        role,
		Destination: destination,
		PeerLegID:   peerLegID,
		Outcome:     outcome,
		Reason:      reason,
	}
	if leg != nil {
		e.LegID = leg.LegID
	}
	o.recorder.LogOutcome(ctx, e)
}

func validate(req DialRequest) error {
	if strings.TrimSpace(req.Lead) == "" {
		return fmt.Errorf("%w: lead destination required", ErrInvalidRequest)
	}
	if len(req.Agents) == 0 {
		return fmt.Errorf("%w: at least one agent destination required", ErrInvalidRequest)
	}
	for _, a := range req.Agents {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: empty agent destination", ErrInvalidRequest)
		}
	}
	return nil
}
