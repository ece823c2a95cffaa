// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Session-scoped loggers carry a session_id field so every line emitted by a
// control session, its tabs and its transfers can be correlated.
//
// Example Usage:
//
//	logger := logging.NewFromLevel("info", false)
//	log := logger.Session(sessionID)
//	log.Info("Tab created", zap.String("tab_id", id))
package logging
