package security

import (
	"net/url"
	"time"
)

// Report summarizes the security posture of a configured engine.
type Report struct {
	TokenSignatureVerified bool
	TokenLeeway            time.Duration
	PlatformTLS            bool
	ServerSessions         bool
	SessionMaxAge          time.Duration
	PollInterval           time.Duration
	HandshakeCeiling       time.Duration
	RateLimitingActive     bool
	IPThrottleActive       bool
	BreakerActive          bool
	AuditActive            bool
	AuditLossy             bool
	Warnings               []string
}

// ReportInput is the flattened configuration BuildReport reads.
type ReportInput struct {
	VerifySecret         string
	TokenLeeway          time.Duration
	APIBaseURL           string
	RedisConfigured      bool
	SessionMaxAge        time.Duration
	PollInterval         time.Duration
	HandshakeMaxDuration time.Duration
	RateLimitEnabled     bool
	EnableIPThrottle     bool
	MaxInitiateAttempts  int
	BreakerMaxFailures   uint32
	AuditEnabled         bool
	AuditDropIfFull      bool
}

// BuildReport derives a Report from input. Warnings list settings that are
// acceptable in development but not in production.
func BuildReport(input ReportInput) Report {
	tls := false
	if u, err := url.Parse(input.APIBaseURL); err == nil {
		tls = u.Scheme == "https"
	}

	rateLimiting := input.RedisConfigured &&
		input.RateLimitEnabled &&
		input.MaxInitiateAttempts > 0

	r := Report{
		TokenSignatureVerified: input.VerifySecret != "",
		TokenLeeway:            input.TokenLeeway,
		PlatformTLS:            tls,
		ServerSessions:         input.RedisConfigured,
		SessionMaxAge:          input.SessionMaxAge,
		PollInterval:           input.PollInterval,
		HandshakeCeiling:       input.HandshakeMaxDuration,
		RateLimitingActive:     rateLimiting,
		IPThrottleActive:       rateLimiting && input.EnableIPThrottle,
		BreakerActive:          input.BreakerMaxFailures > 0,
		AuditActive:            input.AuditEnabled,
		AuditLossy:             input.AuditEnabled && input.AuditDropIfFull,
	}

	if !r.TokenSignatureVerified {
		r.Warnings = append(r.Warnings, "access token signatures are not verified locally")
	}
	if !r.PlatformTLS {
		r.Warnings = append(r.Warnings, "platform API is reached without TLS")
	}
	if !r.RateLimitingActive {
		r.Warnings = append(r.Warnings, "M-Pesa initiation is not rate limited")
	}
	if r.HandshakeCeiling == 0 {
		r.Warnings = append(r.Warnings, "handshakes have no client-side ceiling")
	}

	return r
}
