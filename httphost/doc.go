// Package httphost serves the dashboard's authentication endpoints over
// HTTP. Every request is one engine invocation; the handler only decodes
// JSON, applies the returned cookie directive and maps typed errors to
// status codes.
//
// Routes:
//
//	GET  /          current session view
//	GET  /dashboard protected content, cookie session required
//	POST /login     {"username","password"}
//	POST /logout
//	POST /register  {"username","name","email","password"}
//	POST /profile   {"username","name"?,"email"?}
//	POST /password  {"username","old_password","new_password"}
//	GET  /healthz
//	GET  /metrics   when a metrics handler is configured
package httphost
