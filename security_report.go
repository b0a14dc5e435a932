package chamaWeb

import "github.com/MrEthical07/chamaWeb/internal/security"

// SecurityReport is the engine's configuration posture.
type SecurityReport = security.Report

// SecurityReport summarizes how the engine is configured. cmd/chama-web logs
// it at start-up.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return security.BuildReport(security.ReportInput{
		VerifySecret:         e.config.Token.VerifySecret,
		TokenLeeway:          e.config.Token.Leeway,
		APIBaseURL:           e.config.API.BaseURL,
		RedisConfigured:      e.sessions != nil,
		SessionMaxAge:        e.config.Session.MaxAge,
		PollInterval:         PollInterval,
		HandshakeMaxDuration: e.config.Handshake.MaxDuration,
		RateLimitEnabled:     e.config.RateLimit.Enabled,
		EnableIPThrottle:     e.config.RateLimit.EnableIPThrottle,
		MaxInitiateAttempts:  e.config.RateLimit.MaxInitiateAttempts,
		BreakerMaxFailures:   e.config.API.Breaker.MaxFailures,
		AuditEnabled:         e.config.Audit.Enabled,
		AuditDropIfFull:      e.config.Audit.DropIfFull,
	})
}
