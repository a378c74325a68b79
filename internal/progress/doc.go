// Package progress carries estimator snapshots from the series tracker to
// pluggable sinks. Emitters hand events to a non-blocking Hub, which batches
// them on a background goroutine and fans each batch out to every Sink
// (Prometheus gauges, persistent history, Pub/Sub notifications, logs).
package progress
