package telephony

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubCommander struct {
	replies map[string]string // command prefix -> reply
	err     error
	sent    []string
}

func (s *stubCommander) Exec(ctx context.Context, cmd string) (string, error) {
	s.sent = append(s.sent, cmd)
	if s.err != nil {
		return "", s.err
	}
	for prefix, r := range s.replies {
		if strings.HasPrefix(cmd, prefix) {
			return r, nil
		}
	}
	return "-ERR unknown", nil
}

func TestController_OriginateAcceptedOnAck(t *testing.T) {
	cmd := &stubCommander{replies: map[string]string{"bgapi originate": "+OK Job-UUID: 7f4de4bc"}}
	c := NewController(cmd, nil, nil)

	res, err := c.Originate(context.Background(), "sofia/gateway/gw/100", "leg-1", OriginateOptions{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Outcome != OriginateAccepted {
		t.Fatalf("expected accepted, got %+v", res)
	}
	if len(cmd.sent) != 1 || !strings.Contains(cmd.sent[0], "bridge_leg_id=leg-1") {
		t.Fatalf("expected leg id in command, got %v", cmd.sent)
	}
}

func TestController_OriginateRejectedOnErrReply(t *testing.T) {
	cmd := &stubCommander{replies: map[string]string{"bgapi originate": "-ERR INVALID_GATEWAY"}}
	c := NewController(cmd, nil, nil)

	res, err := c.Originate(context.Background(), "sofia/gateway/nope/100", "leg-1", OriginateOptions{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Outcome != OriginateRejected || res.Reason != "-ERR INVALID_GATEWAY" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestController_TransportErrorIsRejectedAndFlagged(t *testing.T) {
	c := NewController(&stubCommander{err: errors.New("broken pipe")}, nil, nil)

	res, err := c.Originate(context.Background(), "x", "leg-1", OriginateOptions{})
	if res.Outcome != OriginateRejected {
		t.Fatalf("expected rejected, got %+v", res)
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestController_Bridge(t *testing.T) {
	ok := NewController(&stubCommander{replies: map[string]string{"api uuid_bridge": "+OK a"}}, nil, nil)
	if res, err := ok.Bridge(context.Background(), "a", "b"); err != nil || res.Outcome != BridgeBridged {
		t.Fatalf("expected bridged, got %+v %v", res, err)
	}

	bad := NewController(&stubCommander{replies: map[string]string{"api uuid_bridge": "-ERR no such channel b"}}, nil, nil)
	if res, err := bad.Bridge(context.Background(), "a", "b"); err != nil || res.Outcome != BridgeFailed {
		t.Fatalf("expected failed, got %+v %v", res, err)
	}
}

func TestController_KillIsIdempotent(t *testing.T) {
	c := NewController(&stubCommander{replies: map[string]string{"api uuid_kill": "+OK"}}, nil, nil)
	if res, err := c.Kill(context.Background(), "a"); err != nil || res.Outcome != KillKilled {
		t.Fatalf("expected killed, got %+v %v", res, err)
	}

	gone := NewController(&stubCommander{replies: map[string]string{"api uuid_kill": "-ERR No such channel!"}}, nil, nil)
	res, err := gone.Kill(context.Background(), "a")
	if err != nil {
		t.Fatalf("already gone must not be an error: %v", err)
	}
	if res.Outcome != KillAlreadyGone {
		t.Fatalf("expected already gone, got %+v", res)
	}
}
