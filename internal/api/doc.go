// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/warm/token?action= to obtain an action token.
//   - POST /v1/warm/start and /v1/warm/stop to control the warm run.
//   - GET /v1/warm/status for progress polling.
//
// When auth is enabled every /v1/warm route requires X-API-Key and every
// command additionally requires an X-Warm-Token issued for that action.
package api
