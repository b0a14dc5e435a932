// Package chamaWeb drives the login flows of the chama web client against the
// remote chama platform: the M-Pesa out-of-band handshake, password login,
// signup and start-up token verification.
//
// The M-Pesa handshake asks the platform to push a prompt to the member's
// phone, then polls the platform every [PollInterval] until it answers with
// an access token or a terminal status. A [Handshake] owns at most one
// pending poll timer, discards responses that belong to a cancelled or
// replaced attempt, and fails closed when a poll cannot reach the platform.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. A single [Handshake] is safe for
// concurrent use as well, but it belongs to one screen or one browser session.
//
// # Architecture boundaries
//
// chamaWeb is the public surface. It exposes [Engine], [Builder], [Config],
// [Handshake] and value types (MetricsSnapshot, SessionInfo, etc.). The
// platform client lives in apiclient, browser session records in session,
// and local token inspection in jwt. Rate limiting and the posture report live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients or session encoding details in its public API.
//   - Retry a poll that failed in transport. A failed poll ends the handshake.
//   - Log or audit access tokens or passwords.
//   - Import any sub-package that re-imports chamaWeb (no import cycles).
package chamaWeb
