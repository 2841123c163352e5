// Package audit records who did what to the dashboard's credential file.
//
// The engine builds an [Event] with [NewEvent] for each login, logout,
// registration, profile change, password reset and failed save, using
// one of the declared [Kind] values. A [Dispatcher] carries events to a
// [Sink] off the request path: [LineWriter] for JSON lines, [Queue] for
// in-process readers and [Discard].
//
// Events never carry passwords or password hashes. The package does not
// import the root module.
package audit
