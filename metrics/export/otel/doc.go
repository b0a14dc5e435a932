// Package otel exports chamaWeb engine metrics through OpenTelemetry.
//
// [New] registers an Int64ObservableCounter per engine counter. Each latency
// histogram becomes a "_bucket" gauge with one cumulative point per "le"
// bound and a "_count" gauge. One callback reads
// [chamaWeb.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
