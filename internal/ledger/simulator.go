package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hydrocred/hydrocred/internal/certification"
)

// Simulator is an in-process Settler for development and tests.
//
// It checks what the real ledger checks: the signature recovers to the certifier, the certifier is trusted,
// the certification has not expired and the request id has not been settled before.
type Simulator struct {
	mu      sync.Mutex
	codec   certification.Codec
	domain  certification.Domain
	trusted map[common.Address]bool
	settled map[int64]Receipt
	block   int64

	now     func() time.Time
	latency time.Duration
}

func NewSimulator(codec certification.Codec, domain certification.Domain, trusted ...common.Address) *Simulator {
	s := &Simulator{
		codec:   codec,
		domain:  domain,
		trusted: make(map[common.Address]bool, len(trusted)),
		settled: make(map[int64]Receipt),
		block:   1000,
		now:     time.Now,
	}
	for _, a := range trusted {
		s.trusted[a] = true
	}
	return s
}

// SetClock replaces the time source used for expiry checks.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetLatency delays every reply. The settlement is recorded before the delay, so a caller whose context
// expires first sees an unknown outcome for a settlement that did land.
func (s *Simulator) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Trust adds a certifier to the trusted set.
func (s *Simulator) Trust(certifier common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[certifier] = true
}

func (s *Simulator) Settle(ctx context.Context, payload certification.Payload, signature []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, WrapUnknownError(err, "settlement not submitted")
	}

	receipt, latency, err := s.settle(payload, signature)
	if err != nil {
		return Receipt{}, err
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return Receipt{}, WrapUnknownError(ctx.Err(), "settlement reply not received")
		}
	}
	return receipt, nil
}

func (s *Simulator) settle(payload certification.Payload, signature []byte) (Receipt, time.Duration, error) {
	signer, err := s.codec.Recover(s.domain, payload, signature)
	if err != nil {
		return Receipt{}, 0, NewRejectionError(ReasonBadSignature, fmt.Sprintf("signature does not verify: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if signer != payload.Certifier {
		return Receipt{}, 0, NewRejectionError(ReasonBadSignature, "signature was not produced by the named certifier")
	}
	if !s.trusted[signer] {
		return Receipt{}, 0, NewRejectionError(ReasonInsufficientAuthorization, fmt.Sprintf("certifier %s is not authorised on this ledger", signer.Hex()))
	}
	if _, ok := s.settled[payload.RequestID]; ok {
		return Receipt{}, 0, NewRejectionError(ReasonAlreadySettled, fmt.Sprintf("request %d has already been settled", payload.RequestID))
	}
	if s.now().Unix() > payload.Expiry {
		return Receipt{}, 0, NewRejectionError(ReasonExpired, "certification has expired")
	}

	s.block++
	receipt := Receipt{
		RequestID:       payload.RequestID,
		SettlementRef:   fmt.Sprintf("sim-%d-%d", payload.RequestID, s.block),
		TransactionHash: crypto.Keccak256Hash([]byte(IdempotencyKey(payload.RequestID, signature))).Hex(),
		BlockNumber:     s.block,
	}
	s.settled[payload.RequestID] = receipt
	return receipt, s.latency, nil
}

func (s *Simulator) Lookup(ctx context.Context, requestID int64) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, WrapUnknownError(err, "lookup not submitted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.settled[requestID]
	if !ok {
		return Receipt{}, NewNotFoundError(requestID)
	}
	return r, nil
}
