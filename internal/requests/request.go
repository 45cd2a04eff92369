package requests

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
)

// ProductionRequest is a producer's claim that a production event occurred.
type ProductionRequest struct {
	ID       int64          `json:"requestId"`
	Producer common.Address `json:"producer"`

	// ProducerJurisdiction is the producer's jurisdiction when the request was submitted.
	ProducerJurisdiction identity.Jurisdiction `json:"producerJurisdiction"`

	Amount              int64           `json:"amount"`
	EvidenceFingerprint string          `json:"evidenceFingerprint"`
	Evidence            evidence.Bundle `json:"evidence"`
	Status              Status          `json:"status"`

	// set by TransitionToCertified
	Certifier              common.Address `json:"certifier,omitempty"`
	CertificationSignature []byte         `json:"-"`
	Expiry                 time.Time      `json:"expiry,omitempty"`

	RejectionReason string      `json:"rejectionReason,omitempty"`
	Settlement      *Settlement `json:"settlement,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	CertifiedAt time.Time `json:"certifiedAt,omitempty"`
	MintedAt    time.Time `json:"mintedAt,omitempty"`
	RejectedAt  time.Time `json:"rejectedAt,omitempty"`
}

// Payload re-derives the signed certification tuple from the stored fields.
// It is only meaningful once the request holds a certification.
func (r ProductionRequest) Payload() certification.Payload {
	return certification.Payload{
		Producer:  r.Producer,
		Amount:    r.Amount,
		RequestID: r.ID,
		Expiry:    r.Expiry.Unix(),
		Certifier: r.Certifier,
	}
}

// ExpiredAt reports whether the certification expiry is before t.
func (r ProductionRequest) ExpiredAt(t time.Time) bool {
	return r.Status.HoldsCertification() && t.After(r.Expiry)
}

// NewRequest holds the fields supplied at submission.
type NewRequest struct {
	Producer             common.Address
	ProducerJurisdiction identity.Jurisdiction
	Amount               int64
	EvidenceFingerprint  string
	Evidence             evidence.Bundle
}

func (n NewRequest) validate() error {
	if n.Amount <= 0 {
		return NewInvalidAmountError(n.Amount)
	}
	if n.Producer == (common.Address{}) {
		return NewValidationError("producer is required")
	}
	if strings.TrimSpace(n.EvidenceFingerprint) == "" {
		return NewValidationError("evidence fingerprint is required")
	}
	if n.ProducerJurisdiction.Depth() != 3 {
		return NewValidationError("producer jurisdiction must include country, state and city")
	}
	return nil
}

// Certification holds the fields set when a request is certified.
type Certification struct {
	Certifier common.Address
	Signature []byte
	// Expiry is whole seconds, matching the signed payload.
	Expiry time.Time
}

func (c Certification) validate() error {
	if c.Certifier == (common.Address{}) {
		return NewValidationError("certifier is required")
	}
	if len(c.Signature) == 0 {
		return NewValidationError("certification signature is required")
	}
	if c.Expiry.IsZero() {
		return NewValidationError("certification expiry is required")
	}
	return nil
}

// Settlement is the ledger collaborator's confirmation of a mint.
type Settlement struct {
	Ref             string `json:"settlementRef"`
	TransactionHash string `json:"transactionHash,omitempty"`
	BlockNumber     int64  `json:"blockNumber,omitempty"`
}

// Filter narrows List. Zero values are ignored.
type Filter struct {
	Producer     *common.Address
	Status       Status
	Jurisdiction identity.Jurisdiction

	// ExpiredAsOf selects CERTIFIED requests whose expiry is before this time.
	ExpiredAsOf *time.Time

	AfterID int64
	Limit   int
}

// Store is the production request store.
type Store interface {
	// Create assigns the next request id and stores the request as PENDING.
	Create(ctx context.Context, req NewRequest) (ProductionRequest, error)

	Get(ctx context.Context, id int64) (ProductionRequest, error)

	List(ctx context.Context, filter Filter) ([]ProductionRequest, error)

	// TransitionToCertified moves a PENDING request to CERTIFIED unless another request with the same
	// fingerprint is already CERTIFIED or MINTED. The check and the write are one atomic step.
	TransitionToCertified(ctx context.Context, id int64, cert Certification) (ProductionRequest, error)

	// TransitionToMinted moves a CERTIFIED request to MINTED. It fails with an expired error if asOf is after the expiry.
	TransitionToMinted(ctx context.Context, id int64, settlement Settlement, asOf time.Time) (ProductionRequest, error)

	// TransitionToRejected moves a PENDING request to REJECTED.
	TransitionToRejected(ctx context.Context, id int64, reason string) (ProductionRequest, error)

	// HasConflict reports whether a request other than excludeID with this fingerprint is CERTIFIED or MINTED.
	// It is advisory: TransitionToCertified repeats the check atomically.
	HasConflict(ctx context.Context, fingerprint string, excludeID int64) (bool, error)
}
