// Package prometheus renders sessioncore metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [sessioncore.Engine] and exposes an
// [net/http.Handler] for scraping. Counter names are prefixed
// sessioncore_*_total; the single histogram is
// sessioncore_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the
//     Handler.
//   - Mutate engine state.
package prometheus
