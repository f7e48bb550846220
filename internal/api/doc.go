// Package api hosts the HTTP server, middleware, and REST handlers for
// audits. Notable routes:
//   - POST /v1/audits to submit an audit; the response is 202 with the id.
//   - GET /v1/audits/{id} to poll status and read the report.
//   - DELETE /v1/audits/{id} to discard an audit.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
