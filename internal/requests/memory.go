package requests

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. A single mutex guards every read and write, so the duplicate check in
// TransitionToCertified is atomic with the status change.
// Request ids come from a counter owned by the store, which makes it suitable for a single process only
// (tests and the development simulator).
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]ProductionRequest
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		requests: make(map[int64]ProductionRequest),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, req NewRequest) (ProductionRequest, error) {
	if err := req.validate(); err != nil {
		return ProductionRequest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := ProductionRequest{
		ID:                   s.nextID,
		Producer:             req.Producer,
		ProducerJurisdiction: req.ProducerJurisdiction,
		Amount:               req.Amount,
		EvidenceFingerprint:  strings.ToLower(req.EvidenceFingerprint),
		Evidence:             req.Evidence.Strip(),
		Status:               StatusPending,
		CreatedAt:            s.now().UTC(),
	}
	s.nextID++
	s.requests[r.ID] = r
	return copyRequest(r), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (ProductionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return ProductionRequest{}, NewNotFoundError(id)
	}
	return copyRequest(r), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]ProductionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.requests))
	for id := range s.requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []ProductionRequest
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		r := s.requests[id]
		if id <= f.AfterID {
			continue
		}
		if f.Producer != nil && r.Producer != *f.Producer {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Jurisdiction.Depth() > 0 && !f.Jurisdiction.Covers(r.ProducerJurisdiction) {
			continue
		}
		if f.ExpiredAsOf != nil && (r.Status != StatusCertified || !r.Expiry.Before(*f.ExpiredAsOf)) {
			continue
		}
		out = append(out, copyRequest(r))
	}
	return out, nil
}

func (s *MemoryStore) TransitionToCertified(_ context.Context, id int64, cert Certification) (ProductionRequest, error) {
	if err := cert.validate(); err != nil {
		return ProductionRequest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return ProductionRequest{}, NewNotFoundError(id)
	}
	if !CanTransition(r.Status, StatusCertified) {
		return ProductionRequest{}, NewInvalidStateError(id, r.Status, StatusCertified)
	}
	if s.hasConflictLocked(r.EvidenceFingerprint, id) {
		return ProductionRequest{}, NewDuplicateBatchError()
	}

	r.Status = StatusCertified
	r.Certifier = cert.Certifier
	r.CertificationSignature = append([]byte(nil), cert.Signature...)
	r.Expiry = cert.Expiry.Truncate(time.Second).UTC()
	r.CertifiedAt = s.now().UTC()
	s.requests[id] = r
	return copyRequest(r), nil
}

func (s *MemoryStore) TransitionToMinted(_ context.Context, id int64, settlement Settlement, asOf time.Time) (ProductionRequest, error) {
	if strings.TrimSpace(settlement.Ref) == "" {
		return ProductionRequest{}, NewValidationError("settlement reference is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return ProductionRequest{}, NewNotFoundError(id)
	}
	if !CanTransition(r.Status, StatusMinted) {
		return ProductionRequest{}, NewInvalidStateError(id, r.Status, StatusMinted)
	}
	if r.ExpiredAt(asOf) {
		return ProductionRequest{}, NewExpiredError(id)
	}

	st := settlement
	r.Status = StatusMinted
	r.Settlement = &st
	r.MintedAt = s.now().UTC()
	s.requests[id] = r
	return copyRequest(r), nil
}

func (s *MemoryStore) TransitionToRejected(_ context.Context, id int64, reason string) (ProductionRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ProductionRequest{}, NewValidationError("rejection reason is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return ProductionRequest{}, NewNotFoundError(id)
	}
	if !CanTransition(r.Status, StatusRejected) {
		return ProductionRequest{}, NewInvalidStateError(id, r.Status, StatusRejected)
	}

	r.Status = StatusRejected
	r.RejectionReason = reason
	r.RejectedAt = s.now().UTC()
	s.requests[id] = r
	return copyRequest(r), nil
}

func (s *MemoryStore) HasConflict(_ context.Context, fingerprint string, excludeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasConflictLocked(strings.ToLower(fingerprint), excludeID), nil
}

func (s *MemoryStore) hasConflictLocked(fingerprint string, excludeID int64) bool {
	for id, r := range s.requests {
		if id != excludeID && r.EvidenceFingerprint == fingerprint && r.Status.HoldsCertification() {
			return true
		}
	}
	return false
}

func copyRequest(r ProductionRequest) ProductionRequest {
	if r.CertificationSignature != nil {
		r.CertificationSignature = append([]byte(nil), r.CertificationSignature...)
	}
	if r.Settlement != nil {
		st := *r.Settlement
		r.Settlement = &st
	}
	r.Evidence = r.Evidence.Clone()
	return r
}
