// Package middleware exposes HTTP middleware that admits requests carrying a
// usable platform access token.
//
// # Guards
//
//   - [Guard]: enforcement mode chosen by the caller.
//   - [RequireLocal]: token present and unexpired per the engine's inspector, no network call.
//   - [RequireStrict]: token accepted by the platform's verify endpoint.
//
// Each guard reads the token through a [TokenSource], checks it through the
// Engine, and injects the token into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement token checks itself; decisions are delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse JWTs directly (delegates to the Engine's inspector).
//   - Access Redis or the session store (token sources do that).
//   - Store or refresh tokens.
package middleware
