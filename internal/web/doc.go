// Package web is the browser-facing frontend: static pages, the login JSON
// API and the authenticated views.
//
// Architecture boundaries:
//
//   - The session cookie carries only an encrypted session ID. Everything else
//     lives in the Redis record owned by package session.
//   - Each browser session has at most one live handshake. Starting another
//     cancels the previous one, and callbacks from a replaced handshake never
//     touch the record.
//   - Handlers translate engine errors to HTTP status codes. Login semantics
//     stay in the root package.
//
// What this package must NOT do:
//
//   - Put the access token in a cookie or a response body.
//   - Poll the platform itself.
package web
