// Package handlers provides the HTTP handlers for the HydroCred API.
//
// requests.go and identities.go serve the authenticated /v1 API. The remaining files are infrastructure
// handlers (health, version, signing domain).
//
// admin_identities.go is for development and testing only - in production identities are onboarded by the
// external onboarding service and only their verification flag is managed through /v1/identities.
package handlers
