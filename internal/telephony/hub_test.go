package telephony

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHub_AnswerResolvesTrue(t *testing.T) {
	h := NewHub(nil)
	w := h.Watch("leg-1")
	defer w.Stop()

	go h.Publish(Event{Name: EventAnswered, LegID: "leg-1"})

	ok, err := w.Wait(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("expected answered, got %v %v", ok, err)
	}
}

func TestHub_ParkCountsAsAnswer(t *testing.T) {
	h := NewHub(nil)
	w := h.Watch("leg-1")
	defer w.Stop()

	h.Publish(Event{Name: EventParked, LegID: "leg-1"})

	ok, err := w.Wait(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("expected park to count as answered, got %v %v", ok, err)
	}
}

func TestHub_DuplicateEventsResolveOnce(t *testing.T) {
	h := NewHub(nil)
	w := h.Watch("leg-1")

	h.Publish(Event{Name: EventAnswered, LegID: "leg-1"})
	h.Publish(Event{Name: EventParked, LegID: "leg-1"})
	h.Publish(Event{Name: EventAnswered, LegID: "leg-1"})

	ok, err := w.Wait(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("expected answered, got %v %v", ok, err)
	}
	// late duplicates and Stop after resolution are ignored
	h.Publish(Event{Name: EventParked, LegID: "leg-1"})
	w.Stop()
	if w.resolve(false, nil) {
		t.Fatalf("watcher resolved twice")
	}
}

func TestHub_TimeoutResolvesFalseAndDeregisters(t *testing.T) {
	h := NewHub(nil)
	w := h.Watch("leg-1")

	ok, err := w.Wait(context.Background(), 20*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("expected timeout, got %v %v", ok, err)
	}
	if n := h.Pending(); n != 0 {
		t.Fatalf("expected no pending watchers, got %d", n)
	}
	// an answer after the deadline must not flip the outcome
	h.Publish(Event{Name: EventAnswered, LegID: "leg-1"})
	if w.answered {
		t.Fatalf("late answer re-resolved the watcher")
	}
}

func TestHub_IgnoresOtherLegs(t *testing.T) {
	h := NewHub(nil)
	w := h.Watch("leg-1")
	defer w.Stop()

	h.Publish(Event{Name: EventAnswered, LegID: "leg-2"})
	h.Publish(Event{Name: EventHangup, LegID: "leg-1"})
	h.Publish(Event{Name: EventBridged, LegID: "leg-1", PeerLegID: "leg-2"})

	ok, _ := w.Wait(context.Background(), 20*time.Millisecond)
	if ok {
		t.Fatalf("expected no answer for leg-1")
	}
}

func TestHub_FailAllSurfacesTransportError(t *testing.T) {
	h := NewHub(nil)
	w := h.Watch("leg-1")
	defer w.Stop()

	h.FailAll(ErrTransport)

	ok, err := w.Wait(context.Background(), time.Second)
	if ok || !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v %v", ok, err)
	}
}

func TestHub_StopWithoutWaitDeregisters(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 100; i++ {
		w := h.Watch("leg-x")
		w.Stop()
	}
	if n := h.Pending(); n != 0 {
		t.Fatalf("expected no pending watchers, got %d", n)
	}
}

func TestHub_ConcurrentLegsDoNotInterfere(t *testing.T) {
	h := NewHub(nil)
	legs := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	results := make([]bool, len(legs))
	for i, id := range legs {
		w := h.Watch(id)
		wg.Add(1)
		go func(i int, w *Watcher) {
			defer wg.Done()
			defer w.Stop()
			results[i], _ = w.Wait(context.Background(), 200*time.Millisecond)
		}(i, w)
	}
	h.Publish(Event{Name: EventAnswered, LegID: "a"})
	h.Publish(Event{Name: EventParked, LegID: "c"})
	wg.Wait()

	want := []bool{true, false, true, false}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("leg %s: expected %v, got %v", legs[i], want[i], results[i])
		}
	}
}

func TestHub_AwaitAnswer(t *testing.T) {
	h := NewHub(nil)
	go func() {
		for h.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		h.Publish(Event{Name: EventAnswered, LegID: "leg-1"})
	}()
	ok, err := h.AwaitAnswer(context.Background(), "leg-1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected answered, got %v %v", ok, err)
	}
}

func TestHub_JobResultBeforeAndAfterRegistration(t *testing.T) {
	h := NewHub(nil)

	// result pumped before anyone waits
	h.Publish(Event{Name: EventJob, JobID: "j-early", Body: "+OK\n"})
	body, err := h.AwaitJob(context.Background(), "j-early")
	if err != nil || body != "+OK" {
		t.Fatalf("unexpected early job result %q %v", body, err)
	}

	go func() {
		for h.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		h.Publish(Event{Name: EventJob, JobID: "j-late", Body: "-ERR No such channel!\n"})
	}()
	body, err = h.AwaitJob(context.Background(), "j-late")
	if err != nil || !isMissingChannel(body) {
		t.Fatalf("unexpected late job result %q %v", body, err)
	}
	if h.Pending() != 0 {
		t.Fatalf("expected no pending job waiters")
	}
}

func TestHub_JobWaitersFailOnStreamLoss(t *testing.T) {
	h := NewHub(nil)
	go func() {
		for h.Pending() == 0 {
			time.Sleep(time.Millisecond)
		}
		h.FailAll(ErrTransport)
	}()
	if _, err := h.AwaitJob(context.Background(), "j-1"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestHub_JobTimeoutIsTransportError(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.AwaitJob(ctx, "j-never"); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if h.Pending() != 0 {
		t.Fatalf("timed out job waiter must be removed")
	}
}

func TestHub_HangupWatchOutlivesAnswer(t *testing.T) {
	h := NewHub(nil)
	hw := h.WatchHangup("leg-1")
	defer hw.Stop()

	h.Publish(Event{Name: EventAnswered, LegID: "leg-1"})
	if _, gone := hw.HungUp(); gone {
		t.Fatalf("answer must not resolve the hangup watch")
	}

	h.Publish(Event{Name: EventHangup, LegID: "leg-2", HangupCause: "NORMAL_CLEARING"})
	h.Publish(Event{Name: EventHangup, LegID: "leg-1", HangupCause: "NORMAL_CLEARING"})
	cause, gone := hw.HungUp()
	if !gone || cause != "NORMAL_CLEARING" {
		t.Fatalf("expected hangup observed, got %q %v", cause, gone)
	}
	hw.Stop()
	if _, gone := hw.HungUp(); !gone {
		t.Fatalf("observed hangup must survive Stop")
	}
	if h.Pending() != 0 {
		t.Fatalf("expected no pending watches, got %d", h.Pending())
	}
}

func TestHub_HangupWhileRingingEndsAnswerWait(t *testing.T) {
	h := NewHub(nil)
	hw := h.WatchHangup("leg-1")
	defer hw.Stop()
	w := h.Watch("leg-1")
	defer w.Stop()

	go h.Publish(Event{Name: EventHangup, LegID: "leg-1", HangupCause: "CALL_REJECTED"})

	start := time.Now()
	ok, err := w.Wait(context.Background(), 5*time.Second)
	if ok || err != nil {
		t.Fatalf("expected unanswered without error, got %v %v", ok, err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("hangup did not end the wait early")
	}
	if cause, gone := hw.HungUp(); !gone || cause != "CALL_REJECTED" {
		t.Fatalf("expected hangup visible once the wait ends, got %q %v", cause, gone)
	}
}
