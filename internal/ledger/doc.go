// Package ledger is the boundary with the external settlement collaborator: the ledger that performs
// the authoritative token issuance for a certified production request.
//
// The collaborator is called with the certification payload and its signature and answers with either
// a Receipt or a rejection carrying one of a fixed set of reasons. Any outcome that is not a definite
// answer (transport failure, timeout, server fault) is reported as unknown: the settlement may or may not
// have landed, and the caller must retry or reconcile with Lookup.
//
// Two implementations are provided. GatewayClient talks to a settlement gateway over HTTP. Simulator is an
// in-process collaborator for development and tests that performs the same independent checks the real
// ledger does.
package ledger
