package telephony

import (
	"strconv"
	"strings"
	"time"
)

// ackPrefix is the positive acknowledgment FreeSWITCH puts in front of
// successful api and bgapi results.
const ackPrefix = "+OK"

// channelVar is one {key=value} pair of an originate variable block.
type channelVar struct {
	Key   string
	Value string
}

// originateVars builds the ordered variable block for a parked origination.
func originateVars(legID string, opts OriginateOptions) []channelVar {
	vars := []channelVar{
		{"origination_uuid", legID},
		{legIDVar, legID},
		{"ignore_early_media", strconv.FormatBool(opts.IgnoreEarlyMedia)},
		{"hangup_after_bridge", "true"},
		{"call_direction", "outbound"},
	}
	if opts.RingTimeout > 0 {
		vars = append(vars, channelVar{"originate_timeout", seconds(opts.RingTimeout)})
	}
	if opts.ContinueOnFail {
		vars = append(vars, channelVar{"continue_on_fail", "true"})
	}
	if opts.CallerID != "" {
		vars = append(vars,
			channelVar{"effective_caller_id_number", opts.CallerID},
			channelVar{"origination_caller_id_number", opts.CallerID},
		)
	}
	if opts.MediaTimeout > 0 {
		mt := seconds(opts.MediaTimeout)
		vars = append(vars,
			channelVar{"rtp_timeout", mt},
			channelVar{"rtp_hold_timeout", mt},
			channelVar{"media_timeout", mt},
		)
	}
	return vars
}

// BuildOriginate returns the bgapi command that rings destination and parks
// the leg on answer, so nothing is connected until we bridge explicitly.
func BuildOriginate(destination, legID string, opts OriginateOptions) string {
	var b strings.Builder
	b.WriteString("bgapi originate {")
	for i, v := range originateVars(legID, opts) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(v.Key)
		b.WriteByte('=')
		b.WriteString(escapeVar(v.Value))
	}
	b.WriteByte('}')
	b.WriteString(destination)
	b.WriteString(" &park()")
	return b.String()
}

func BuildBridge(legIDA, legIDB string) string {
	return "api uuid_bridge " + legIDA + " " + legIDB
}

func BuildKill(legID string) string {
	return "api uuid_kill " + legID
}

// escapeVar protects the variable block separators.
func escapeVar(v string) string {
	v = strings.ReplaceAll(v, ",", `\,`)
	if strings.ContainsAny(v, " \t") {
		return "'" + strings.ReplaceAll(v, "'", "") + "'"
	}
	return v
}

func seconds(d time.Duration) string {
	s := int64(d / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}

func isAck(res string) bool {
	return strings.HasPrefix(strings.TrimSpace(res), ackPrefix)
}

// isMissingChannel recognizes uuid_kill replies for a leg that already ended.
func isMissingChannel(res string) bool {
	r := strings.ToLower(res)
	return strings.Contains(r, "no such channel") || strings.Contains(r, "invalid uuid") || strings.Contains(r, "not found")
}
