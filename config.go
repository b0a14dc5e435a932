package chamaWeb

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of the [Engine]. Build clones it, so later
// mutation by the caller has no effect on a running engine.
type Config struct {
	API       APIConfig
	Handshake HandshakeConfig
	Session   SessionConfig
	Token     TokenConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig points the engine at the remote chama platform.
type APIConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	Breaker        BreakerConfig
}

// BreakerConfig tunes the circuit breaker in front of the remote API.
type BreakerConfig struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

/*
====================================
HANDSHAKE CONFIG
====================================
*/

// HandshakeConfig bounds one out-of-band login. The poll cadence itself is
// fixed at [PollInterval].
type HandshakeConfig struct {
	// MaxDuration is the client-side ceiling measured from a successful
	// initiation. Zero leaves the remote "expired" status as the only bound.
	MaxDuration time.Duration
	// PollTimeout bounds a single status request.
	PollTimeout time.Duration
	// RedirectTo is handed to OnSuccess callers that render a redirect.
	RedirectTo string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the server-side browser session records.
type SessionConfig struct {
	RedisPrefix string
	MaxAge      time.Duration
}

// TokenConfig controls local inspection of platform access tokens. With an
// empty VerifySecret tokens are parsed unverified and only their expiry is
// trusted.
type TokenConfig struct {
	VerifySecret string
	Leeway       time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig throttles initiation requests per phone number and per
// client IP. It only applies when a Redis client is supplied.
type RateLimitConfig struct {
	Enabled             bool
	EnableIPThrottle    bool
	MaxInitiateAttempts int
	InitiateWindow      time.Duration
	RedisPrefix         string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the handshake latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when [Builder.WithConfig] is not called.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api",
			RequestTimeout: 10 * time.Second,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Interval:    time.Minute,
				Timeout:     30 * time.Second,
			},
		},
		Handshake: HandshakeConfig{
			MaxDuration: 6 * time.Minute,
			PollTimeout: 10 * time.Second,
			RedirectTo:  "/dashboard",
		},
		Session: SessionConfig{
			RedisPrefix: "cw:sess",
			MaxAge:      24 * time.Hour,
		},
		Token: TokenConfig{
			Leeway: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:             true,
			EnableIPThrottle:    true,
			MaxInitiateAttempts: 5,
			InitiateWindow:      5 * time.Minute,
			RedisPrefix:         "cw:rl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return errors.New("API BaseURL must be set")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.RequestTimeout < 0 {
		return errors.New("API RequestTimeout must be >= 0")
	}
	if c.API.Breaker.MaxFailures == 0 {
		return errors.New("API Breaker MaxFailures must be > 0")
	}
	if c.API.Breaker.Timeout <= 0 {
		return errors.New("API Breaker Timeout must be > 0")
	}

	if c.Handshake.MaxDuration < 0 {
		return errors.New("Handshake MaxDuration must be >= 0")
	}
	if c.Handshake.MaxDuration > 0 && c.Handshake.MaxDuration < PollInterval {
		return errors.New("Handshake MaxDuration must be >= the poll interval")
	}
	if c.Handshake.PollTimeout <= 0 {
		return errors.New("Handshake PollTimeout must be > 0")
	}

	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must be set")
	}
	if c.Session.MaxAge <= 0 {
		return errors.New("Session MaxAge must be > 0")
	}

	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxInitiateAttempts <= 0 {
			return errors.New("RateLimit MaxInitiateAttempts must be > 0")
		}
		if c.RateLimit.InitiateWindow <= 0 {
			return errors.New("RateLimit InitiateWindow must be > 0")
		}
		if c.RateLimit.RedisPrefix == "" {
			return errors.New("RateLimit RedisPrefix must be set")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
