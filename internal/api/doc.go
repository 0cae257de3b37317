// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/tasks and the /v1/tasks/{id}/... family for live task
//     tracking: step reports, finish, progress views, duration ledgers.
//   - GET /v1/history and /v1/history/{id} for finished runs via the
//     TaskRepository interface.
package api
