package telephony

import (
	"fmt"
	"strings"
)

// EventName is the normalized name of an Event Stream notification.
type EventName string

const (
	EventAnswered EventName = "answered"
	EventParked   EventName = "parked"
	EventBridged  EventName = "bridged"
	EventHangup   EventName = "hangup"
	EventJob      EventName = "job"
)

// Event is one Event Stream notification after normalization.
type Event struct {
	Name        EventName
	LegID       string
	PeerLegID   string
	HangupCause string
	JobID       string
	Body        string
}

// legIDVar is the channel variable carrying our own correlation identifier.
// FreeSWITCH reports channel variables as variable_<name> headers.
const legIDVar = "bridge_leg_id"

var eslEventNames = map[string]EventName{
	"CHANNEL_ANSWER":          EventAnswered,
	"CHANNEL_PARK":            EventParked,
	"CHANNEL_BRIDGE":          EventBridged,
	"CHANNEL_HANGUP_COMPLETE": EventHangup,
	"BACKGROUND_JOB":          EventJob,
}

// subscribedEvents is the event list requested once per connection.
const subscribedEvents = "CHANNEL_ANSWER CHANNEL_PARK CHANNEL_BRIDGE CHANNEL_HANGUP_COMPLETE BACKGROUND_JOB"

// qualifiesAsAnswer reports whether e means "ready to proceed" for its leg.
// A park notification is treated exactly like an answer: legs are originated
// into &park() and some stacks only report the park.
func (e Event) qualifiesAsAnswer() bool {
	return e.Name == EventAnswered || e.Name == EventParked
}

// ParseESLHeaders normalizes a raw event header set. ok is false for events
// we do not track.
func ParseESLHeaders(h map[string]interface{}, body string) (Event, bool) {
	name, known := eslEventNames[headerValue(h, "Event-Name")]
	if !known {
		return Event{}, false
	}
	ev := Event{
		Name:        name,
		LegID:       headerValue(h, "variable_"+legIDVar),
		PeerLegID:   headerValue(h, "Other-Leg-Unique-ID"),
		HangupCause: headerValue(h, "Hangup-Cause"),
		JobID:       headerValue(h, "Job-UUID"),
		Body:        body,
	}
	if ev.LegID == "" {
		ev.LegID = headerValue(h, "Unique-ID")
	}
	return ev, true
}

// headerValue looks a header up case-insensitively. The event socket library
// canonicalizes keys differently for replies and plain events.
func headerValue(h map[string]interface{}, key string) string {
	if v, ok := h[key]; ok {
		return stringify(v)
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return stringify(v)
		}
	}
	return ""
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []string:
		if len(t) == 0 {
			return ""
		}
		return strings.TrimSpace(t[0])
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
