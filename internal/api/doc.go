// Package api hosts the HTTP server, middleware, and read-only handlers that
// run alongside a sweep. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs and /api/runs/{run_id} for sweep progress via the
//     RunReader interface.
package api
