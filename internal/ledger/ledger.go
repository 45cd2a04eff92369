package ledger

import (
	"context"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hydrocred/hydrocred/internal/certification"
)

// Receipt identifies a completed settlement on the ledger.
type Receipt struct {
	RequestID       int64  `json:"requestId"`
	SettlementRef   string `json:"settlementRef"`
	TransactionHash string `json:"transactionHash,omitempty"`
	BlockNumber     int64  `json:"blockNumber,omitempty"`
}

// Settler is the settlement collaborator.
type Settler interface {
	// Settle submits a certification for issuance. The collaborator re-verifies the signature and applies
	// its own duplicate and expiry checks. Resubmitting an already settled certification is rejected with
	// ReasonAlreadySettled, which makes retries after an unknown outcome safe.
	Settle(ctx context.Context, payload certification.Payload, signature []byte) (Receipt, error)

	// Lookup returns the settlement recorded for a request id, or a not found error.
	Lookup(ctx context.Context, requestID int64) (Receipt, error)
}

// IdempotencyKey identifies a settlement submission by request id and signature.
func IdempotencyKey(requestID int64, signature []byte) string {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(requestID))
	return crypto.Keccak256Hash(id[:], signature).Hex()
}
