// Package session persists browser sessions in Redis.
//
// A [Session] ties a browser cookie to the phone number being logged in, the
// in-flight login request and, once confirmed, the platform access token.
// Records are stored as a compact versioned binary blob; [Decode] still reads
// version 1 blobs written before login tracking existed.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not talk to
// the platform API, interpret tokens or drive the login state machine.
//
// # What this package must NOT do
//
//   - Import the root package, jwt or apiclient.
//   - Decide whether a token is still valid.
package session
