// Package requests is the authoritative record of production requests and their lifecycle.
//
// The state machine is PENDING -> CERTIFIED -> MINTED, with PENDING -> REJECTED as the only other edge.
// Every write is a conditional update on the current status, so an illegal transition is rejected by the
// store itself, not only by the callers.
//
// At most one request per evidence fingerprint may be CERTIFIED or MINTED. TransitionToCertified checks
// this in the same atomic step as the status change:
//
//   - PostgresStore: a partial unique index on evidence_fingerprint covering CERTIFIED and MINTED rows makes the
//     conditional UPDATE fail with a unique violation, which is reported as a duplicate batch.
//   - MemoryStore: the check and the write happen under the store's lock.
package requests
