package requests

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// certifiedFingerprintIndex is the partial unique index enforcing one CERTIFIED/MINTED request per fingerprint.
const certifiedFingerprintIndex = "production_requests_certified_fingerprint_key"

// PostgresStore is the Store backed by the production_requests table.
type PostgresStore struct {
	queries *database.Queries
}

func NewPostgresStore(queries *database.Queries) *PostgresStore {
	return &PostgresStore{queries: queries}
}

func (s *PostgresStore) Create(ctx context.Context, req NewRequest) (ProductionRequest, error) {
	if err := req.validate(); err != nil {
		return ProductionRequest{}, err
	}
	evidenceJSON, err := json.Marshal(req.Evidence.Strip())
	if err != nil {
		return ProductionRequest{}, WrapInternalError(err, "failed to encode evidence")
	}

	row, err := s.queries.CreateProductionRequest(ctx, database.CreateProductionRequestParams{
		Producer:            req.Producer.Hex(),
		ProducerCountry:     req.ProducerJurisdiction.Country,
		ProducerState:       req.ProducerJurisdiction.State,
		ProducerCity:        req.ProducerJurisdiction.City,
		Amount:              req.Amount,
		EvidenceFingerprint: strings.ToLower(req.EvidenceFingerprint),
		Evidence:            evidenceJSON,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ProductionRequest{}, NewValidationError("producer is not a registered identity")
		}
		return ProductionRequest{}, WrapInternalError(err, "failed to create production request")
	}
	return fromRow(row)
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (ProductionRequest, error) {
	row, err := s.queries.GetProductionRequest(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductionRequest{}, NewNotFoundError(id)
		}
		return ProductionRequest{}, WrapInternalError(err, "failed to get production request")
	}
	return fromRow(row)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]ProductionRequest, error) {
	dbFilter := database.ListProductionRequestsFilter{
		Status:      string(f.Status),
		Country:     f.Jurisdiction.Country,
		State:       f.Jurisdiction.State,
		City:        f.Jurisdiction.City,
		ExpiredAsOf: f.ExpiredAsOf,
		AfterID:     f.AfterID,
	}
	if f.Producer != nil {
		dbFilter.Producer = f.Producer.Hex()
	}
	if f.Limit > 0 {
		dbFilter.Limit = uint64(f.Limit)
	}

	rows, err := s.queries.ListProductionRequests(ctx, dbFilter)
	if err != nil {
		return nil, WrapInternalError(err, "failed to list production requests")
	}
	out := make([]ProductionRequest, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PostgresStore) TransitionToCertified(ctx context.Context, id int64, cert Certification) (ProductionRequest, error) {
	if err := cert.validate(); err != nil {
		return ProductionRequest{}, err
	}
	certifier := cert.Certifier.Hex()

	row, err := s.queries.CertifyProductionRequest(ctx, database.CertifyProductionRequestParams{
		ID:                     id,
		Certifier:              &certifier,
		CertificationSignature: cert.Signature,
		Expiry:                 pgtype.Timestamptz{Time: cert.Expiry.Truncate(time.Second).UTC(), Valid: true},
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == certifiedFingerprintIndex {
			return ProductionRequest{}, NewDuplicateBatchError()
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductionRequest{}, s.classifyMiss(ctx, id, StatusCertified, time.Time{})
		}
		return ProductionRequest{}, WrapInternalError(err, "failed to certify production request")
	}
	return fromRow(row)
}

func (s *PostgresStore) TransitionToMinted(ctx context.Context, id int64, settlement Settlement, asOf time.Time) (ProductionRequest, error) {
	if strings.TrimSpace(settlement.Ref) == "" {
		return ProductionRequest{}, NewValidationError("settlement reference is required")
	}
	params := database.MintProductionRequestParams{
		ID:            id,
		SettlementRef: &settlement.Ref,
		AsOf:          pgtype.Timestamptz{Time: asOf.UTC(), Valid: true},
	}
	if settlement.TransactionHash != "" {
		params.TransactionHash = &settlement.TransactionHash
	}
	if settlement.BlockNumber != 0 {
		params.BlockNumber = &settlement.BlockNumber
	}

	row, err := s.queries.MintProductionRequest(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductionRequest{}, s.classifyMiss(ctx, id, StatusMinted, asOf)
		}
		return ProductionRequest{}, WrapInternalError(err, "failed to mint production request")
	}
	return fromRow(row)
}

func (s *PostgresStore) TransitionToRejected(ctx context.Context, id int64, reason string) (ProductionRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ProductionRequest{}, NewValidationError("rejection reason is required")
	}
	row, err := s.queries.RejectProductionRequest(ctx, database.RejectProductionRequestParams{
		ID:              id,
		RejectionReason: &reason,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductionRequest{}, s.classifyMiss(ctx, id, StatusRejected, time.Time{})
		}
		return ProductionRequest{}, WrapInternalError(err, "failed to reject production request")
	}
	return fromRow(row)
}

func (s *PostgresStore) HasConflict(ctx context.Context, fingerprint string, excludeID int64) (bool, error) {
	conflict, err := s.queries.HasCertifiedFingerprint(ctx, database.HasCertifiedFingerprintParams{
		EvidenceFingerprint: strings.ToLower(fingerprint),
		ID:                  excludeID,
	})
	if err != nil {
		return false, WrapInternalError(err, "failed to check evidence fingerprint")
	}
	return conflict, nil
}

// classifyMiss explains why a conditional update matched no row.
func (s *PostgresStore) classifyMiss(ctx context.Context, id int64, to Status, asOf time.Time) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if to == StatusMinted && current.Status == StatusCertified && current.ExpiredAt(asOf) {
		return NewExpiredError(id)
	}
	return NewInvalidStateError(id, current.Status, to)
}

func fromRow(row database.ProductionRequest) (ProductionRequest, error) {
	r := ProductionRequest{
		ID:       row.ID,
		Producer: common.HexToAddress(row.Producer),
		ProducerJurisdiction: identity.Jurisdiction{
			Country: row.ProducerCountry,
			State:   row.ProducerState,
			City:    row.ProducerCity,
		},
		Amount:                 row.Amount,
		EvidenceFingerprint:    row.EvidenceFingerprint,
		Status:                 Status(row.Status),
		CertificationSignature: row.CertificationSignature,
		CreatedAt:              row.CreatedAt.Time,
		CertifiedAt:            row.CertifiedAt.Time,
		MintedAt:               row.MintedAt.Time,
		RejectedAt:             row.RejectedAt.Time,
	}

	var bundle evidence.Bundle
	if len(row.Evidence) > 0 {
		if err := json.Unmarshal(row.Evidence, &bundle); err != nil {
			return ProductionRequest{}, WrapInternalError(err, "failed to decode stored evidence")
		}
	}
	r.Evidence = bundle

	if row.Certifier != nil {
		r.Certifier = common.HexToAddress(*row.Certifier)
	}
	if row.Expiry.Valid {
		r.Expiry = row.Expiry.Time.UTC()
	}
	if row.RejectionReason != nil {
		r.RejectionReason = *row.RejectionReason
	}
	if row.SettlementRef != nil {
		r.Settlement = &Settlement{Ref: *row.SettlementRef}
		if row.TransactionHash != nil {
			r.Settlement.TransactionHash = *row.TransactionHash
		}
		if row.BlockNumber != nil {
			r.Settlement.BlockNumber = *row.BlockNumber
		}
	}
	return r, nil
}
