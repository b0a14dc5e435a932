package internaldefs

import (
	chamaWeb "github.com/MrEthical07/chamaWeb"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   chamaWeb.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   chamaWeb.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: chamaWeb.MetricHandshakeStarted, Name: "chamaweb_handshake_started_total", Help: "M-Pesa logins accepted by the platform."},
	{ID: chamaWeb.MetricInitiateFailure, Name: "chamaweb_initiate_failure_total", Help: "M-Pesa initiations refused or unreachable."},
	{ID: chamaWeb.MetricInitiateRejected, Name: "chamaweb_initiate_rejected_total", Help: "M-Pesa initiations rejected locally for bad input."},
	{ID: chamaWeb.MetricInitiateRateLimited, Name: "chamaweb_initiate_rate_limited_total", Help: "M-Pesa initiations blocked by the rate limiter."},
	{ID: chamaWeb.MetricPollSent, Name: "chamaweb_poll_sent_total", Help: "Login status requests issued."},
	{ID: chamaWeb.MetricPollPending, Name: "chamaweb_poll_pending_total", Help: "Login status answers still pending."},
	{ID: chamaWeb.MetricPollTransportError, Name: "chamaweb_poll_transport_error_total", Help: "Login status requests that never reached the platform."},
	{ID: chamaWeb.MetricHandshakeSucceeded, Name: "chamaweb_handshake_succeeded_total", Help: "M-Pesa logins that obtained a token."},
	{ID: chamaWeb.MetricHandshakeFailed, Name: "chamaweb_handshake_failed_total", Help: "M-Pesa logins that ended failed."},
	{ID: chamaWeb.MetricHandshakeExpired, Name: "chamaweb_handshake_expired_total", Help: "M-Pesa logins expired by the platform."},
	{ID: chamaWeb.MetricHandshakeTimeout, Name: "chamaweb_handshake_timeout_total", Help: "M-Pesa logins stopped by the client-side ceiling."},
	{ID: chamaWeb.MetricHandshakeCancelled, Name: "chamaweb_handshake_cancelled_total", Help: "M-Pesa logins released by cancel."},
	{ID: chamaWeb.MetricStaleResponseDiscarded, Name: "chamaweb_stale_response_discarded_total", Help: "Responses discarded after cancel or re-initiation."},
	{ID: chamaWeb.MetricBootstrapNoToken, Name: "chamaweb_bootstrap_no_token_total", Help: "Bootstraps without a stored token."},
	{ID: chamaWeb.MetricBootstrapValid, Name: "chamaweb_bootstrap_valid_total", Help: "Bootstraps whose stored token verified."},
	{ID: chamaWeb.MetricBootstrapCleared, Name: "chamaweb_bootstrap_cleared_total", Help: "Bootstraps that cleared the stored token."},
	{ID: chamaWeb.MetricPasswordLoginSuccess, Name: "chamaweb_password_login_success_total", Help: "Successful password logins."},
	{ID: chamaWeb.MetricPasswordLoginFailure, Name: "chamaweb_password_login_failure_total", Help: "Failed password logins."},
	{ID: chamaWeb.MetricSignupSuccess, Name: "chamaweb_signup_success_total", Help: "Created accounts."},
	{ID: chamaWeb.MetricSignupFailure, Name: "chamaweb_signup_failure_total", Help: "Failed signups."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: chamaWeb.MetricHandshakeLatency, Name: "chamaweb_handshake_latency_seconds", Help: "Time from M-Pesa initiation to access token."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "chamaweb_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{2, 5, 10, 20, 30, 60, 120}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"2",
	"5",
	"10",
	"20",
	"30",
	"60",
	"120",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
