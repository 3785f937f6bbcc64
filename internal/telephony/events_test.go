package telephony

import "testing"

func TestParseESLHeaders_PrefersCorrelationVariable(t *testing.T) {
	ev, ok := ParseESLHeaders(map[string]interface{}{
		"Event-Name":             "CHANNEL_ANSWER",
		"Unique-Id":              "fs-internal",
		"Variable_bridge_leg_id": "leg-1",
	}, "")
	if !ok {
		t.Fatalf("expected tracked event")
	}
	if ev.Name != EventAnswered || ev.LegID != "leg-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseESLHeaders_FallsBackToUniqueID(t *testing.T) {
	ev, ok := ParseESLHeaders(map[string]interface{}{
		"Event-Name":          "CHANNEL_BRIDGE",
		"Unique-ID":           "leg-1",
		"Other-Leg-Unique-ID": "leg-2",
	}, "")
	if !ok || ev.Name != EventBridged || ev.LegID != "leg-1" || ev.PeerLegID != "leg-2" {
		t.Fatalf("unexpected event: %+v %v", ev, ok)
	}
}

func TestParseESLHeaders_HangupAndJob(t *testing.T) {
	ev, ok := ParseESLHeaders(map[string]interface{}{
		"Event-Name":   "CHANNEL_HANGUP_COMPLETE",
		"Unique-ID":    "leg-1",
		"Hangup-Cause": []string{"NO_ANSWER"},
	}, "")
	if !ok || ev.Name != EventHangup || ev.HangupCause != "NO_ANSWER" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	job, ok := ParseESLHeaders(map[string]interface{}{"Event-Name": "BACKGROUND_JOB", "Job-Uuid": "j1"}, "-ERR USER_BUSY\n")
	if !ok || job.Name != EventJob || job.JobID != "j1" {
		t.Fatalf("unexpected job event: %+v", job)
	}
}

func TestParseESLHeaders_UntrackedEvent(t *testing.T) {
	if _, ok := ParseESLHeaders(map[string]interface{}{"Event-Name": "HEARTBEAT"}, ""); ok {
		t.Fatalf("expected heartbeat to be ignored")
	}
}

func TestQualifiesAsAnswer(t *testing.T) {
	if !(Event{Name: EventAnswered}).qualifiesAsAnswer() || !(Event{Name: EventParked}).qualifiesAsAnswer() {
		t.Fatalf("answer and park must both qualify")
	}
	if (Event{Name: EventHangup}).qualifiesAsAnswer() {
		t.Fatalf("hangup must not qualify")
	}
}
