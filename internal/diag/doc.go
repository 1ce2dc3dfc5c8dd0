// Package diag exposes the diagnostics HTTP API: health, control loop
// state, sanitized configuration, and Prometheus metrics.
package diag
