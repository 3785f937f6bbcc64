package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		Store: StoreConfig{Backend: "memory"},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AppliesDialerDefaults(t *testing.T) {
	c := validLocal()
	c.Dialer.OriginateRate = -1
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.ESLAddr() != "127.0.0.1:8021" || c.ESL.Password != "ClueCon" {
		t.Fatalf("unexpected esl defaults: %+v", c.ESL)
	}
	if c.Dialer.MaxRounds != 1 || c.Dialer.AgentRing != 20*time.Second || c.Dialer.LeadRing != 25*time.Second {
		t.Fatalf("unexpected dialer defaults: %+v", c.Dialer)
	}
	if c.Dialer.GatewayPrefix != "sofia/gateway/didlogic/" || c.Dialer.AgentPrefix != c.Dialer.GatewayPrefix {
		t.Fatalf("unexpected prefixes: %+v", c.Dialer)
	}
	if c.Dialer.OriginateRate != 10 {
		t.Fatalf("expected default originate rate, got %v", c.Dialer.OriginateRate)
	}
}

func TestValidate_PostgresStoreRequiresDB(t *testing.T) {
	c := validLocal()
	c.Store.Backend = ""
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_HOST") {
		t.Fatalf("expected DB errors, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		ESL:   ESLConfig{Password: "x"},
		Store: StoreConfig{Backend: "postgres"},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer"},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "i", JWTAudience: "a"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validLocal()
	c.Store.Backend = "postgres"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_ConcurrencyCapRequiresRedis(t *testing.T) {
	c := validLocal()
	c.Dialer.MaxConcurrent = 5
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected redis error, got %v", err)
	}
}

func TestValidate_RejectsNegativeRounds(t *testing.T) {
	c := validLocal()
	c.Dialer.MaxRounds = -2
	if err := c.Validate(); err == nil {
		t.Fatalf("expected MAX_ROUNDS error")
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("ATTEMPTS_STORE", "memory")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("MAX_ROUNDS", "3")
	t.Setenv("AGENT_RING_SECONDS", "15")
	t.Setenv("DIALER_ORIGINATE_RATE", "0")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Dialer.MaxRounds != 3 || c.Dialer.AgentRing != 15*time.Second {
		t.Fatalf("unexpected dialer config: %+v", c.Dialer)
	}
	if c.Dialer.OriginateRate != 0 {
		t.Fatalf("explicit zero rate must disable pacing, got %v", c.Dialer.OriginateRate)
	}
	if !c.Dialer.ContinueOnFail {
		t.Fatalf("continue_on_fail must default to true")
	}
}

func TestLoad_ContinueOnFailOverride(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("ATTEMPTS_STORE", "memory")
	t.Setenv("JWT_SECRET", "s")

	t.Setenv("DIALER_ENDPOINTS", "user/, sofia/internal/ ,")
	t.Setenv("DIALER_CONTINUE_ON_FAIL", "false")
	c, err := Load()
	if err != nil || c.Dialer.ContinueOnFail {
		t.Fatalf("expected continue_on_fail disabled, got %v %v", c.Dialer.ContinueOnFail, err)
	}
	if len(c.Dialer.Endpoints) != 2 || c.Dialer.Endpoints[1] != "sofia/internal/" {
		t.Fatalf("unexpected endpoints: %q", c.Dialer.Endpoints)
	}

	t.Setenv("DIALER_CONTINUE_ON_FAIL", "sometimes")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for a non-boolean value")
	}
}
