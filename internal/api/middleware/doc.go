// Package middleware holds the gin middleware shared by the HTTP surface:
// CORS, per-client rate limiting and API-key authentication.
package middleware
