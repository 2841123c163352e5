// Package middleware exposes the HTTP guard for routes that require an
// authenticated dashboard session.
//
// # Guards
//
//   - [Guard] restores the session from the signed cookie and injects an
//     [Identity] into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT verify
// cookies itself; every decision is delegated to Engine.Handle.
//
// # What this package must NOT do
//
//   - Parse or sign cookies directly (delegates to Engine).
//   - Accept credentials. A guarded route never logs anyone in.
//   - Make authorization decisions beyond pass/reject.
package middleware
