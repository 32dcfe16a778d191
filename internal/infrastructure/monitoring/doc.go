/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the server,
tracking HTTP requests, fragment lifecycle, sandbox executions, tool calls,
and the operation stream.

# Features

- HTTP request metrics (latency, throughput, size)
- Fragment lifecycle metrics (spawned, active)
- Sandbox execution metrics (duration, outcomes, gate violations)
- Tool call metrics (duration, outcomes, allowlist refusals)
- Pending request gauges per boundary
- Bundle resolution metrics
- WebSocket connection metrics
- System metrics (uptime)

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record domain events
	metrics.FragmentSpawned()
	metrics.ViolationRecorded("window")

	// Time tool calls
	timer := monitoring.NewTimer(metrics, "storage.get")
	// ... perform call ...
	timer.Stop(monitoring.StatusOK)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
