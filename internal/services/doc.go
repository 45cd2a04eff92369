// Package services builds the collaborators used by the server from configuration.
//
// External dependencies (the settlement ledger, the identity directory, audit sinks) have local implementations
// for dev/test and remote ones for production; the implementation is selected via configuration.
package services
