// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz and /readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - /v1/series for starting, observing, inspecting and abandoning live series.
//   - GET /v1/history/series for persisted series and snapshots via the
//     store.SeriesRepository interface.
package api
