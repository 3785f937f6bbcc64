package routing

import (
	"errors"
	"fmt"
	"strings"
)

// DialPlan turns the short destinations accepted at the API edge into full
// FreeSWITCH dial strings.
//
// A destination containing "/" is a complete dial string and is accepted
// only when it starts with one of Endpoints (for example "user/" or
// "sofia/internal/"). Anything else is treated as a number and gets the
// role's prefix.
type DialPlan struct {
	AgentPrefix string
	LeadPrefix  string
	Endpoints   []string
}

var ErrBadDestination = errors.New("routing: bad destination")

// Route is the resolved input of one campaign attempt.
type Route struct {
	Lead   string
	Agents []string
}

// Resolve applies the plan to a lead and its ordered agent candidates.
// Order is preserved and duplicates are dropped after the first occurrence.
func (p DialPlan) Resolve(lead string, agents []string) (Route, error) {
	l, err := p.LeadDestination(lead)
	if err != nil {
		return Route{}, err
	}
	a, err := p.AgentDestinations(agents)
	if err != nil {
		return Route{}, err
	}
	return Route{Lead: l, Agents: a}, nil
}

func (p DialPlan) LeadDestination(raw string) (string, error) {
	return p.resolve(p.LeadPrefix, raw)
}

func (p DialPlan) AgentDestinations(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no agents", ErrBadDestination)
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		d, err := p.resolve(p.AgentPrefix, r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

func (p DialPlan) resolve(prefix, raw string) (string, error) {
	d := strings.TrimSpace(raw)
	if d == "" {
		return "", fmt.Errorf("%w: empty", ErrBadDestination)
	}
	// Whitespace, braces and commas would break out of the originate
	// argument or its variable block; "|" and ":_:" chain extra endpoints.
	if strings.ContainsAny(d, " \t\r\n{}[],|<>'\"") || strings.Contains(d, ":_:") {
		return "", fmt.Errorf("%w: %q", ErrBadDestination, d)
	}
	if !strings.Contains(d, "/") {
		return prefix + d, nil
	}
	for _, ep := range p.Endpoints {
		if ep != "" && strings.HasPrefix(d, ep) && len(d) > len(ep) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: endpoint not allowed: %q", ErrBadDestination, d)
}
