// Package identity is the participant directory: wallet address, role, jurisdiction and verification flag.
//
// Authorization is a pure function over the role table in hierarchy.go:
//
//   - CanCertify reports whether an authority may certify a request from a producer in a given jurisdiction.
//   - CanAdminister reports whether an actor may change another identity's verification status.
//
// Neither function returns an error. Callers turn a false result into a forbidden outcome.
package identity
