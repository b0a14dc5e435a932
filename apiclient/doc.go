// Package apiclient is the HTTP client for the chama platform REST API.
//
// # Endpoints
//
//   - POST /auth/mpesa/login/initiate and GET /auth/mpesa/login/status/{id} for the
//     out-of-band M-Pesa login handshake.
//   - GET /auth/verify for stored-token validation.
//   - POST /auth/login, POST /auth/signup and GET /my-chamas for the password flows
//     and the membership listing.
//
// Every request passes through a circuit breaker. A network failure or an open
// breaker is reported as [ErrTransport]; a non-2xx answer is an [*APIError]
// carrying the server "detail" text.
//
// # What this package must NOT do
//
//   - Retry requests. Callers decide what a failure means.
//   - Interpret handshake state. It returns decoded wire responses only.
package apiclient
