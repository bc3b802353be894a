/*
Package monitoring provides Prometheus metrics for the inspector service.

# Overview

Metrics covers three groups: HTTP requests served by the API, the inspector
itself (expansions by outcome, resolver fetches and their latency, getter
invocations, serializations, property cache hits) and the session and
event stream layer. It implements the metrics sinks of the inspector tree
and the property cache, so one value is handed to both.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	router.Use(monitoring.Middleware(metrics))
	tree := inspector.NewTree(backend).WithMetrics(metrics)

	timer := monitoring.NewTimer(metrics, "evaluate")
	// ... serve the call ...
	timer.Stop("200")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
