// Command issue-token mints an operator token pair for the dialer API.
//
//	issue-token -user alice -workspace ws-1 -role agent
//
// It reads the same JWT_* environment as the API process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"freeswitch-bridge/internal/auth"
	"freeswitch-bridge/internal/config"
	"freeswitch-bridge/internal/rbac"
)

func main() {
	user := flag.String("user", "", "user id")
	workspace := flag.String("workspace", "", "workspace id")
	role := flag.String("role", rbac.RoleAgent, "role: owner, agent, analyst, super_admin")
	flag.Parse()

	cfg := config.AuthConfig{
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       os.Getenv("JWT_ISSUER"),
		JWTAudience:     os.Getenv("JWT_AUDIENCE"),
		AccessTokenTTL:  envDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTokenTTL: envDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
	}
	m, err := auth.NewManager(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(1)
	}

	pair, err := m.IssuePair(time.Now(), auth.Identity{UserID: *user, WorkspaceID: *workspace, Role: *role})
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue-token:", err)
		os.Exit(2)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(pair)
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}
