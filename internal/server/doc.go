// Package server provides the HTTP server for the HydroCred certification service.
//
// the server is configured through environment variables
// (see internal/config/config.go for details)
//
// Routes:
//   - common infrastructure handlers (health, version, metrics, the certification signing domain)
//   - the session-authenticated /v1 API for production requests and identities
//   - the development-only admin API for onboarding identities
//
// handlers are in internal/server/handlers and middleware is in internal/server/middleware
package server
