// Package prometheus exposes finAuth metrics as a prometheus.Collector.
//
// [NewCollector] reads [finAuth.Client.MetricsSnapshot] on every scrape and
// emits const metrics: finauth_*_total counters and the request and refresh
// latency histograms. [Collector.Handler] serves them from a private
// registry.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate client state.
package prometheus
