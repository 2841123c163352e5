// Package dashauth manages credentials and login sessions for a small
// dashboard backed by a flat YAML credential file.
//
// Each request is one invocation: the store is locked and loaded, the
// presented cookie or credentials are applied, at most one action runs
// (logout, register, profile update, password reset), and the store is
// saved and unlocked. [Engine.Handle] runs that sequence as a single call;
// [Engine.Begin] exposes the same steps through an [Invocation] for hosts
// that need finer control.
//
// # Architecture boundaries
//
// dashauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (Session, UserRecord, CookieDirective, MetricsSnapshot).
// The credential file format and locks live in store/, hashing in password/,
// cookie signing in cookie/. Throttling, audit dispatch and counters live
// under internal/.
//
// # What this package must NOT do
//
//   - Keep user or session state between invocations. The credential file
//     and the signed cookie are the only carriers.
//   - Report an invalid cookie as an error. It degrades to requiring
//     credentials.
//   - Write HTTP responses. Hosts translate CookieDirective themselves.
package dashauth
