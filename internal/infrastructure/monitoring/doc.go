/*
Package monitoring provides Prometheus metrics for the Bastion server.

# Overview

Metrics are registered on an injectable registry so that independent servers
(and tests) never collide on the global default registry.

# Series

- HTTP requests on the side-channel surface (count, latency)
- Admission decisions and live sessions
- Live render targets across sessions
- Relayed and superseded screencast frames
- Control channel messages by direction and type
- Finished downloads and policy vetoes

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
