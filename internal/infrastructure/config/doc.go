// Package config provides 12-factor configuration management for the engine.
//
// Configuration is loaded from environment variables with sensible defaults.
// Setting TRACELINE_CONFIG to a TOML file path loads the full configuration
// from that file instead, which is convenient for packaged deployments.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Tracing: Sampling rate, ring buffer size, abandonment timeout
//   - Correlation: Scoring threshold, recent window, retention
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - TRACE_SAMPLE_RATE, TRACE_MAX_COMPLETED, TRACE_MAX_DURATION, TRACE_CLEANUP_INTERVAL
//   - CORRELATION_THRESHOLD, CORRELATION_RECENT_WINDOW, CORRELATION_RETENTION_HOURS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
