// Package main hosts the etaserver entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, readiness, metrics and the /v1 series endpoints. Callers start a
//     series with a total, post counts to /v1/series/{id}/observations and receive the percent complete plus
//     instantaneous and averaged time-to-complete estimates.
//   - Tracker: internal/tracker owns one estimator.Series per tracked process behind a per-series mutex, enforces the
//     running-series cap and evicts old finished series.
//   - Progress fanout: every start, observation, completion and abandonment becomes a progress.Event. The Hub batches
//     events without blocking callers and hands them to sinks: history (memory or Postgres), Prometheus gauges,
//     Pub/Sub notifications and an optional structured log.
//   - Configuration & plumbing: Viper reads an optional file plus ETA_* env overrides; zap provides structured
//     logging with optional lumberjack rotation; Prometheus metrics are served from /metrics.
//
// Operational notes:
//   - The process reacts to SIGINT and SIGTERM by draining in-flight requests, flushing the Hub and closing the
//     database pool and Pub/Sub topic.
//   - Without db.dsn history is kept in memory and lost on restart.
//   - `etaserver simulate` replays synthetic series against a fake clock; no server or config file is needed.
//
// Quick checklist:
//   - Run locally: go run ./cmd/etaserver serve --config config.yaml (or rely solely on env overrides).
//   - Persist history: ETA_DB_DSN=postgres://... ; tables are created on startup.
//   - Notifications: ETA_PUBSUB_PROJECT_ID and ETA_PUBSUB_TOPIC_NAME.
package main
