// Package sinks implements concrete progress consumers: structured logging,
// Prometheus gauges, repository-backed history, and broker notifications.
// Each sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
