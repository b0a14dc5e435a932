// Package security derives a posture report from engine configuration.
//
// The report is consumed by the root package's Engine.SecurityReport and
// logged once at server start.
//
// # What this package must NOT do
//
//   - Read configuration files or the environment.
//   - Import the root package.
package security
