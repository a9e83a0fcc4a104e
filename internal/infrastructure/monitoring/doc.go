/*
Package monitoring provides Prometheus metrics for the engine.

# Overview

This package collects HTTP request metrics, trace/span lifecycle counters,
error-correlation counters, and WebSocket subscriber metrics. Trace and
error metrics are fed through engine callbacks rather than sampled, so the
counters match the engine's own statistics.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Feed engine events
	tracer.OnTraceFinished(metrics.RecordTraceFinished)
	correlator.OnErrorRecorded(metrics.RecordError)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
