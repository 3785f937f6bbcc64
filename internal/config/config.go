package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dialer process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	ESL    ESLConfig
	Dialer DialerConfig
	Store  StoreConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// ESLConfig points at the FreeSWITCH event socket (inbound mode).
type ESLConfig struct {
	Host     string
	Port     int
	Password string
}

type DialerConfig struct {
	MaxRounds int
	AgentRing time.Duration
	LeadRing  time.Duration

	// GatewayPrefix is prepended to bare lead numbers. AgentPrefix defaults
	// to it when unset.
	GatewayPrefix string
	AgentPrefix   string
	// Endpoints lists the dial string prefixes callers may pass through
	// unprefixed. Empty means every destination is a number.
	Endpoints []string

	CallerID     string
	MediaTimeout time.Duration
	// ContinueOnFail is set on every originate; Load defaults it to true.
	ContinueOnFail bool

	// OriginateRate is originates per second; 0 disables pacing.
	OriginateRate float64
	// MaxConcurrent caps concurrent campaign attempts through Redis; 0 disables.
	MaxConcurrent int
}

type StoreConfig struct {
	// Backend is "postgres" or "memory".
	Backend string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.ESL.Host = strings.TrimSpace(os.Getenv("ESL_HOST"))
	{
		n, err := optInt("ESL_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.ESL.Port = n
	}
	c.ESL.Password = os.Getenv("ESL_PASSWORD")

	{
		n, err := optInt("MAX_ROUNDS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dialer.MaxRounds = n
	}
	{
		n, err := optInt("AGENT_RING_SECONDS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dialer.AgentRing = time.Duration(n) * time.Second
	}
	{
		n, err := optInt("LEAD_RING_SECONDS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dialer.LeadRing = time.Duration(n) * time.Second
	}
	{
		n, err := optInt("DIALER_MEDIA_TIMEOUT_SECONDS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dialer.MediaTimeout = time.Duration(n) * time.Second
	}
	{
		n, err := optInt("DIALER_MAX_CONCURRENT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dialer.MaxConcurrent = n
	}
	if v := strings.TrimSpace(os.Getenv("DIALER_ORIGINATE_RATE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("DIALER_ORIGINATE_RATE must be a number, got %q", v))
		}
		c.Dialer.OriginateRate = f
	} else {
		c.Dialer.OriginateRate = -1 // unset; defaulted in Validate
	}
	c.Dialer.GatewayPrefix = strings.TrimSpace(os.Getenv("DIALER_GATEWAY_PREFIX"))
	c.Dialer.AgentPrefix = strings.TrimSpace(os.Getenv("DIALER_AGENT_PREFIX"))
	c.Dialer.CallerID = strings.TrimSpace(os.Getenv("DIALER_CALLER_ID"))
	for _, ep := range strings.Split(os.Getenv("DIALER_ENDPOINTS"), ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			c.Dialer.Endpoints = append(c.Dialer.Endpoints, ep)
		}
	}
	c.Dialer.ContinueOnFail = true
	if v := strings.TrimSpace(os.Getenv("DIALER_CONTINUE_ON_FAIL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("DIALER_CONTINUE_ON_FAIL must be a boolean, got %q", v))
		}
		c.Dialer.ContinueOnFail = b
	}

	c.Store.Backend = strings.TrimSpace(os.Getenv("ATTEMPTS_STORE"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults in place and reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.ESL.Host == "" {
		c.ESL.Host = "127.0.0.1"
	}
	if c.ESL.Port == 0 {
		c.ESL.Port = 8021
	}
	if c.ESL.Port < 0 || c.ESL.Port > 65535 {
		errs = append(errs, fmt.Errorf("ESL_PORT must be a valid port, got %d", c.ESL.Port))
	}
	if c.ESL.Password == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("ESL_PASSWORD is required in production"))
		} else {
			c.ESL.Password = "ClueCon"
		}
	}

	if c.Dialer.MaxRounds == 0 {
		c.Dialer.MaxRounds = 1
	}
	if c.Dialer.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("MAX_ROUNDS must be >= 1, got %d", c.Dialer.MaxRounds))
	}
	if c.Dialer.AgentRing == 0 {
		c.Dialer.AgentRing = 20 * time.Second
	}
	if c.Dialer.LeadRing == 0 {
		c.Dialer.LeadRing = 25 * time.Second
	}
	if c.Dialer.AgentRing < 0 || c.Dialer.LeadRing < 0 {
		errs = append(errs, errors.New("AGENT_RING_SECONDS and LEAD_RING_SECONDS must be positive"))
	}
	if c.Dialer.MediaTimeout == 0 {
		c.Dialer.MediaTimeout = 60 * time.Second
	}
	if c.Dialer.GatewayPrefix == "" {
		c.Dialer.GatewayPrefix = "sofia/gateway/didlogic/"
	}
	if c.Dialer.AgentPrefix == "" {
		c.Dialer.AgentPrefix = c.Dialer.GatewayPrefix
	}
	if c.Dialer.OriginateRate < 0 {
		c.Dialer.OriginateRate = 10
	}
	if c.Dialer.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("DIALER_MAX_CONCURRENT must be >= 0, got %d", c.Dialer.MaxConcurrent))
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "postgres"
	}
	switch c.Store.Backend {
	case "postgres":
		errs = append(errs, c.validateDB()...)
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("ATTEMPTS_STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("ATTEMPTS_STORE must be postgres or memory, got %q", c.Store.Backend))
	}

	if c.Dialer.MaxConcurrent > 0 {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when DIALER_MAX_CONCURRENT is set"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) ESLAddr() string {
	return fmt.Sprintf("%s:%d", c.ESL.Host, c.ESL.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return parseInt(key, v)
}

// optInt returns 0 when key is unset so Validate can apply the default.
func optInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	return parseInt(key, v)
}

func parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
