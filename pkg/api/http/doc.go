// Package http provides the HTTP API implementation.
//
// The HTTP server exposes endpoints for:
//   - Liveness probes (/health)
//   - Service information (/)
//   - Prometheus metrics (/metrics)
package http
