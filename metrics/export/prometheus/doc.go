// Package prometheus exposes dashauth engine metrics to Prometheus.
//
// [NewCollector] wraps an [dashauth.Engine] in a prometheus.Collector that
// reads a fresh snapshot on every scrape. Counter names are prefixed
// dashauth_*_total; the single histogram is dashauth_invocation_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register
//     the collector or mount [Handler].
//   - Mutate engine state.
package prometheus
