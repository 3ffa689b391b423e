// Package api hosts the ops HTTP listener that runs beside a corpus build.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live build counters.
package api
