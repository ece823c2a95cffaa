// Package server wires the control channel and the side-channel HTTP
// surface onto one gin router and owns their shared collaborators.
//
// Routes:
//
//	GET /ws       control channel (credential checked before the upgrade)
//	GET /health   liveness and session occupancy
//	GET /metrics  Prometheus exposition
//	/api/...      downloads and uploads, rate limited and API-key protected
//
// Lifecycle:
//
//	srv, err := server.New(cfg, server.Deps{Engine: eng}, logger)
//	go srv.Run()
//	...
//	srv.Shutdown(ctx) // stops HTTP, closes every session, closes the engine
package server
