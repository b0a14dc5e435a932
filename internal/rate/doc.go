// Package rate provides the Redis-backed fixed-window counters that throttle
// M-Pesa login initiations.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live
// under a configurable prefix:
//   - <prefix>:ip:p:<phone>: initiations per normalized phone number
//   - <prefix>:ip:a:<addr> : initiations per client IP
//
// # What this package must NOT do
//
//   - Decide what a rejection means to the user (the Engine maps errors to notices).
//   - Be imported outside the chamaWeb module.
package rate
