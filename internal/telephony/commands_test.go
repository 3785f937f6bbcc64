package telephony

import (
	"strings"
	"testing"
	"time"
)

func TestBuildOriginate_CarriesLegIDAndParks(t *testing.T) {
	cmd := BuildOriginate("sofia/gateway/didlogic/100", "leg-1", OriginateOptions{
		RingTimeout:      20 * time.Second,
		CallerID:         "442039960029",
		MediaTimeout:     60 * time.Second,
		IgnoreEarlyMedia: true,
	})

	want := "bgapi originate {origination_uuid=leg-1,bridge_leg_id=leg-1,ignore_early_media=true,hangup_after_bridge=true," +
		"call_direction=outbound,originate_timeout=20,effective_caller_id_number=442039960029," +
		"origination_caller_id_number=442039960029,rtp_timeout=60,rtp_hold_timeout=60,media_timeout=60}" +
		"sofia/gateway/didlogic/100 &park()"
	if cmd != want {
		t.Fatalf("unexpected command:\n got %s\nwant %s", cmd, want)
	}
}

func TestBuildOriginate_OmitsUnsetAttributes(t *testing.T) {
	cmd := BuildOriginate("user/100", "leg-2", OriginateOptions{})
	for _, k := range []string{"originate_timeout", "caller_id", "rtp_timeout", "continue_on_fail"} {
		if strings.Contains(cmd, k) {
			t.Fatalf("expected %s to be omitted: %s", k, cmd)
		}
	}
	if !strings.Contains(cmd, "ignore_early_media=false") {
		t.Fatalf("expected explicit ignore_early_media: %s", cmd)
	}
}

func TestEscapeVar(t *testing.T) {
	if got := escapeVar("a,b"); got != `a\,b` {
		t.Fatalf("unexpected escape: %q", got)
	}
	if got := escapeVar("Sales Team"); got != "'Sales Team'" {
		t.Fatalf("unexpected quoting: %q", got)
	}
}

func TestBridgeAndKillCommands(t *testing.T) {
	if got := BuildBridge("a", "b"); got != "api uuid_bridge a b" {
		t.Fatalf("unexpected bridge: %q", got)
	}
	if got := BuildKill("a"); got != "api uuid_kill a" {
		t.Fatalf("unexpected kill: %q", got)
	}
}

func TestSecondsRoundsUpToOne(t *testing.T) {
	if got := seconds(200 * time.Millisecond); got != "1" {
		t.Fatalf("expected 1, got %q", got)
	}
}
