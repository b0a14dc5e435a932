// Package prometheus exposes chamaWeb engine metrics as a Prometheus collector.
//
// [NewPrometheusExporter] wraps an [chamaWeb.Engine]; the exporter can be
// registered on any registry or served directly through Handler. Counter
// names are prefixed chamaweb_*_total; the single histogram is
// chamaweb_handshake_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
