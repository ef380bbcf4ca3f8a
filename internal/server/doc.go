// Package server exposes the local HTTP API: health, runtime statistics,
// sensitivity control and Prometheus metrics.
package server
