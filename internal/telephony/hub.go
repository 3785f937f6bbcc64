package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// jobRetention is how long an unclaimed job result is kept. A result can
// be pumped before Exec has registered for it.
const jobRetention = time.Minute

// Hub fans Event Stream notifications out to answer watchers keyed by legId.
//
// Many campaign attempts share one Hub. Isolation comes only from legId
// scoping; there is no global lock held across a wait.
type Hub struct {
	log *slog.Logger

	mu       sync.Mutex
	seq      uint64
	watchers map[string]map[uint64]*Watcher
	hangups  map[string]map[uint64]*HangupWatch

	jobWaiters map[string]chan jobResult
	jobDone    map[string]jobResult
}

type jobResult struct {
	body string
	err  error
	at   time.Time
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		watchers:   map[string]map[uint64]*Watcher{},
		hangups:    map[string]map[uint64]*HangupWatch{},
		jobWaiters: map[string]chan jobResult{},
		jobDone:    map[string]jobResult{},
	}
}

// Watcher is a single pending answer outcome for one leg.
// It resolves exactly once: answered, timed out, or failed by the transport.
type Watcher struct {
	hub   *Hub
	legID string
	id    uint64

	once     sync.Once
	done     chan struct{}
	answered bool
	err      error
}

// Watch registers interest in answer/park events for legID. Call it before
// originating the leg so no event can slip past, and always Stop it.
func (h *Hub) Watch(legID string) *Watcher {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	w := &Watcher{hub: h, legID: legID, id: h.seq, done: make(chan struct{})}
	set, ok := h.watchers[legID]
	if !ok {
		set = map[uint64]*Watcher{}
		h.watchers[legID] = set
	}
	set[w.id] = w
	return w
}

// AwaitAnswer is Watch followed by Wait, for callers that have nothing to
// issue between registration and waiting.
func (h *Hub) AwaitAnswer(ctx context.Context, legID string, timeout time.Duration) (bool, error) {
	w := h.Watch(legID)
	defer w.Stop()
	return w.Wait(ctx, timeout)
}

// Publish dispatches one event. Events for unknown legs are dropped.
func (h *Hub) Publish(ev Event) {
	switch {
	case ev.qualifiesAsAnswer():
		h.mu.Lock()
		set := h.watchers[ev.LegID]
		delete(h.watchers, ev.LegID)
		h.mu.Unlock()

		for _, w := range set {
			w.resolve(true, nil)
		}
		if len(set) > 0 {
			h.log.Debug("leg ready", "leg_id", ev.LegID, "event", ev.Name)
		}
	case ev.Name == EventHangup:
		h.mu.Lock()
		gone := h.hangups[ev.LegID]
		delete(h.hangups, ev.LegID)
		ringing := h.watchers[ev.LegID]
		delete(h.watchers, ev.LegID)
		h.mu.Unlock()

		// Hangup watches resolve first so a woken answer waiter can see why.
		for _, hw := range gone {
			hw.resolve(ev.HangupCause)
		}
		for _, w := range ringing {
			w.resolve(false, nil)
		}
		h.log.Debug("leg hangup observed", "leg_id", ev.LegID, "cause", ev.HangupCause)
	case ev.Name == EventBridged:
		h.log.Debug("legs bridged", "leg_id", ev.LegID, "peer_leg_id", ev.PeerLegID)
	case ev.Name == EventJob && ev.JobID != "":
		h.log.Debug("background job finished", "job_id", ev.JobID, "result", ev.Body)
		h.finishJob(ev.JobID, jobResult{body: strings.TrimSpace(ev.Body), at: time.Now()})
	}
}

func (h *Hub) finishJob(jobID string, r jobResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.jobWaiters[jobID]; ok {
		delete(h.jobWaiters, jobID)
		ch <- r
		return
	}
	for id, old := range h.jobDone {
		if r.at.Sub(old.at) > jobRetention {
			delete(h.jobDone, id)
		}
	}
	h.jobDone[jobID] = r
}

// AwaitJob waits for the BACKGROUND_JOB result of jobID and returns its
// trimmed body. ctx expiry and stream loss are reported as ErrTransport.
func (h *Hub) AwaitJob(ctx context.Context, jobID string) (string, error) {
	h.mu.Lock()
	if r, ok := h.jobDone[jobID]; ok {
		delete(h.jobDone, jobID)
		h.mu.Unlock()
		return r.body, nil
	}
	ch := make(chan jobResult, 1)
	h.jobWaiters[jobID] = ch
	h.mu.Unlock()

	select {
	case r := <-ch:
		return r.body, r.err
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.jobWaiters, jobID)
		h.mu.Unlock()
		return "", fmt.Errorf("%w: job %s: %v", ErrTransport, jobID, ctx.Err())
	}
}

// FailAll resolves every pending watcher with err. Used when the Event
// Stream drops: nothing could ever arrive for those legs on this session.
func (h *Hub) FailAll(err error) {
	h.mu.Lock()
	all := h.watchers
	h.watchers = map[string]map[uint64]*Watcher{}
	for id, ch := range h.jobWaiters {
		ch <- jobResult{err: err}
		delete(h.jobWaiters, id)
	}
	h.mu.Unlock()

	for _, set := range all {
		for _, w := range set {
			w.resolve(false, err)
		}
	}
}

// Pending returns the number of registered answer watchers, hangup watches
// and job waiters.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.jobWaiters)
	for _, set := range h.watchers {
		n += len(set)
	}
	for _, set := range h.hangups {
		n += len(set)
	}
	return n
}

func (h *Hub) remove(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[w.legID]
	if !ok {
		return
	}
	delete(set, w.id)
	if len(set) == 0 {
		delete(h.watchers, w.legID)
	}
}

func (w *Watcher) resolve(answered bool, err error) bool {
	first := false
	w.once.Do(func() {
		first = true
		w.answered = answered
		w.err = err
		close(w.done)
	})
	return first
}

// Wait blocks until the leg is answered (true), timeout elapses (false), or
// the transport fails (error). A resolution that happened before Wait was
// called is returned immediately.
func (w *Watcher) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	defer w.hub.remove(w)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
	case <-timer.C:
		w.resolve(false, nil)
	case <-ctx.Done():
		w.resolve(false, ctx.Err())
	}
	<-w.done
	return w.answered, w.err
}

// Stop deregisters the watcher. Safe to call more than once and after Wait.
func (w *Watcher) Stop() {
	w.resolve(false, nil)
	w.hub.remove(w)
}

// HangupWatch reports a hangup of one leg observed on the Event Stream.
// Unlike Watcher it outlives the answer, so it can be checked at any point
// of the leg's life.
type HangupWatch struct {
	hub   *Hub
	legID string
	id    uint64

	once  sync.Once
	done  chan struct{}
	cause string
}

// WatchHangup registers interest in the hangup of legID. Register it before
// originating and Stop it once the leg is no longer supervised.
func (h *Hub) WatchHangup(legID string) *HangupWatch {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	hw := &HangupWatch{hub: h, legID: legID, id: h.seq, done: make(chan struct{})}
	set, ok := h.hangups[legID]
	if !ok {
		set = map[uint64]*HangupWatch{}
		h.hangups[legID] = set
	}
	set[hw.id] = hw
	return hw
}

func (hw *HangupWatch) resolve(cause string) {
	hw.once.Do(func() {
		hw.cause = cause
		close(hw.done)
	})
}

// Done is closed once the hangup has been observed.
func (hw *HangupWatch) Done() <-chan struct{} { return hw.done }

// HungUp reports, without blocking, whether the hangup was observed and
// with which cause.
func (hw *HangupWatch) HungUp() (string, bool) {
	select {
	case <-hw.done:
		return hw.cause, true
	default:
		return "", false
	}
}

// Stop deregisters the watch. A hangup already observed stays visible
// through HungUp.
func (hw *HangupWatch) Stop() {
	hw.hub.mu.Lock()
	defer hw.hub.mu.Unlock()
	set, ok := hw.hub.hangups[hw.legID]
	if !ok {
		return
	}
	delete(set, hw.id)
	if len(set) == 0 {
		delete(hw.hub.hangups, hw.legID)
	}
}
