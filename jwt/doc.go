// Package jwt inspects access tokens issued by the chama platform.
//
// The platform signs HS256 tokens carrying a "user_id" claim and an "exp".
// Without a configured secret the [Inspector] reads claims unverified, which
// is enough to size session lifetimes and to skip a network call for a token
// that is plainly expired. With a secret it verifies the signature too.
//
// # What this package must NOT do
//
//   - Issue tokens. Only the platform mints them.
//   - Treat an unverified parse as proof of identity; the remote /auth/verify
//     endpoint stays authoritative.
package jwt
