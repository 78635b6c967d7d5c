// Package otel binds finAuth counters and histograms to OpenTelemetry
// observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [finAuth.Client.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate client state.
package otel
