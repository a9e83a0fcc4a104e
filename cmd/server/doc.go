// Package main is the entry point for the traceline server.
//
// The server embeds the tracing/correlation engine and exposes its
// read-only reporting API over HTTP, a live WebSocket event stream, and
// Prometheus metrics.
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional TOML file via TRACELINE_CONFIG
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Reduced tracing overhead
//	./server -sample-rate 0.1
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
