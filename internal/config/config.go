// Package config loads the chama-web server settings from the environment
// and an optional .env file using godotenv and Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds server settings read from the environment.
type Config struct {
	// Port is the HTTP listen port.
	Port string `mapstructure:"PORT"`
	// Env is "development" or "production".
	Env string `mapstructure:"APP_ENV"`
	// PublicDir holds the static pages and assets.
	PublicDir string `mapstructure:"PUBLIC_DIR"`
	// APIBaseURL is the chama platform API root.
	APIBaseURL string `mapstructure:"API_BASE_URL"`

	// RedisAddr is the Redis address; empty starts an embedded miniredis in development.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SessionSecret keys the session cookie. Required in production.
	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionMaxAge time.Duration `mapstructure:"SESSION_MAX_AGE"`

	// TokenSecret verifies platform token signatures locally when set.
	TokenSecret string `mapstructure:"TOKEN_VERIFY_SECRET"`

	// RateLimitPerMin bounds /api/ requests per client IP.
	RateLimitPerMin int `mapstructure:"RATE_LIMIT_PER_MIN"`

	BreakerMaxFailures   uint32        `mapstructure:"BREAKER_MAX_FAILURES"`
	BreakerTimeout       time.Duration `mapstructure:"BREAKER_TIMEOUT"`
	HandshakeMaxDuration time.Duration `mapstructure:"HANDSHAKE_MAX_DURATION"`

	// OTLPEndpoint enables OTLP metric export when set.
	OTLPEndpoint   string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
	AuditEnabled   bool   `mapstructure:"AUDIT_ENABLED"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var keys = []string{
	"PORT", "APP_ENV", "PUBLIC_DIR", "API_BASE_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"SESSION_SECRET", "SESSION_MAX_AGE", "TOKEN_VERIFY_SECRET",
	"RATE_LIMIT_PER_MIN", "BREAKER_MAX_FAILURES", "BREAKER_TIMEOUT",
	"HANDSHAKE_MAX_DURATION", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"METRICS_ENABLED", "AUDIT_ENABLED", "SHUTDOWN_TIMEOUT",
}

// Load reads .env files (if present) into the process environment, then
// builds and validates Config through Viper. Variables already set in the
// environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PUBLIC_DIR", "public")
	v.SetDefault("API_BASE_URL", "http://localhost:8000/api")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_MAX_AGE", "24h")
	v.SetDefault("TOKEN_VERIFY_SECRET", "")
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_TIMEOUT", "30s")
	v.SetDefault("HANDSHAKE_MAX_DURATION", "6m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.AutomaticEnv()
	// Unmarshal only sees keys Viper knows about.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must be set")
	}
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("config: APP_ENV must be development or production, got %q", c.Env)
	}
	if c.Production() && c.SessionSecret == "" {
		return errors.New("config: SESSION_SECRET must be set when APP_ENV=production")
	}
	if c.Production() && c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR must be set when APP_ENV=production")
	}
	if c.SessionMaxAge <= 0 {
		return errors.New("config: SESSION_MAX_AGE must be > 0")
	}
	if c.RateLimitPerMin < 0 {
		return errors.New("config: RATE_LIMIT_PER_MIN must be >= 0")
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// Engine maps the server settings onto an engine configuration. The result
// still goes through chamaWeb.Config.Validate at Build.
func (c *Config) Engine() chamaWeb.Config {
	cfg := chamaWeb.DefaultConfig()
	cfg.API.BaseURL = c.APIBaseURL
	if c.BreakerMaxFailures > 0 {
		cfg.API.Breaker.MaxFailures = c.BreakerMaxFailures
	}
	if c.BreakerTimeout > 0 {
		cfg.API.Breaker.Timeout = c.BreakerTimeout
	}
	cfg.Handshake.MaxDuration = c.HandshakeMaxDuration
	cfg.Session.MaxAge = c.SessionMaxAge
	cfg.Token.VerifySecret = c.TokenSecret
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return cfg
}
