// Package config provides 12-factor configuration management for the Bastion server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, optional TLS pair)
//   - Auth: Shared credential for the control channel and HTTP surface
//   - Limits: Process-wide session cap and per-session tab cap
//   - Browser: Render engine launch and screencast settings
//   - Storage/Transfer: Per-session download and upload areas
//   - Policy: URL guard and threat scan settings
//   - Logging, RateLimit
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
