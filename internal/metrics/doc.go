// Package metrics exposes agent pool instrumentation to Prometheus.
//
// A Collector keeps its own registry so tests and embedders never collide with
// the global default registry. Agent gauges are computed at scrape time from
// the live registry; everything else is a counter or histogram updated by the
// pool as operations complete.
package metrics
