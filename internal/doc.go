// Package internal contains helpers private to chamaWeb, currently the
// session cookie key derivation.
//
// # Sub-packages
//
//   - config: environment and .env loading for the binaries
//   - logging: zap logger construction
//   - rate: Redis-backed initiation rate limits
//   - security: configuration posture report
//   - tokenfile: on-disk access token for chamactl
//   - web: the browser-facing HTTP server
//
// # What this package must NOT do
//
//   - Export types that appear in the public chamaWeb API.
//   - Be imported by any package outside the chamaWeb module.
package internal
