// Package rate throttles failed logins with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. With
// MaxLoginAttempts = N, the first N failures are allowed and CheckLogin
// starts refusing once the counter reaches N. Key layout:
//   - <prefix>:al:<username>  per-user
//   - <prefix>:ali:<ip>       per-IP
//
// # What this package must NOT do
//
//   - Decide what happens when Redis is down; callers choose fail-open.
//   - Be imported outside this module.
package rate
