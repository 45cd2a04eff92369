package database

// hand-written: filtered listing has a variable WHERE clause, which sqlc cannot express.

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// productionRequestColumns must match the column order scanned by scanProductionRequest.
var productionRequestColumns = []string{
	"id", "producer", "producer_country", "producer_state", "producer_city", "amount",
	"evidence_fingerprint", "evidence", "status", "certifier", "certification_signature", "expiry",
	"rejection_reason", "settlement_ref", "transaction_hash", "block_number",
	"created_at", "certified_at", "minted_at", "rejected_at",
}

// ListProductionRequestsFilter narrows ListProductionRequests. Empty fields are ignored.
// Jurisdiction fields are matched as a prefix: setting only Country returns every request in that country.
type ListProductionRequestsFilter struct {
	Producer string
	Status   string
	Country  string
	State    string
	City     string

	// ExpiredAsOf returns only CERTIFIED requests whose expiry is before this time.
	ExpiredAsOf *time.Time

	// AfterID is a keyset cursor: only requests with id > AfterID are returned.
	AfterID int64
	Limit   uint64
}

const defaultListLimit = 100

// BuildListProductionRequestsQuery returns the SQL and args used by ListProductionRequests.
func BuildListProductionRequestsQuery(f ListProductionRequestsFilter) (string, []interface{}, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	query := psql.Select(productionRequestColumns...).From("production_requests")

	if f.Producer != "" {
		query = query.Where(sq.Eq{"producer": f.Producer})
	}
	if f.Status != "" {
		query = query.Where(sq.Eq{"status": f.Status})
	}
	if f.Country != "" {
		query = query.Where(sq.Expr("lower(producer_country) = lower(?)", f.Country))
	}
	if f.State != "" {
		query = query.Where(sq.Expr("lower(producer_state) = lower(?)", f.State))
	}
	if f.City != "" {
		query = query.Where(sq.Expr("lower(producer_city) = lower(?)", f.City))
	}
	if f.ExpiredAsOf != nil {
		query = query.Where(sq.Eq{"status": "CERTIFIED"}).Where(sq.Lt{"expiry": *f.ExpiredAsOf})
	}
	if f.AfterID > 0 {
		query = query.Where(sq.Gt{"id": f.AfterID})
	}

	limit := f.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	return query.OrderBy("id").Limit(limit).ToSql()
}

// ListProductionRequests returns requests matching the filter ordered by id.
func (q *Queries) ListProductionRequests(ctx context.Context, f ListProductionRequestsFilter) ([]ProductionRequest, error) {
	sqlStr, args, err := BuildListProductionRequestsQuery(f)
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := q.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ProductionRequest
	for rows.Next() {
		var i ProductionRequest
		if err := rows.Scan(
			&i.ID,
			&i.Producer,
			&i.ProducerCountry,
			&i.ProducerState,
			&i.ProducerCity,
			&i.Amount,
			&i.EvidenceFingerprint,
			&i.Evidence,
			&i.Status,
			&i.Certifier,
			&i.CertificationSignature,
			&i.Expiry,
			&i.RejectionReason,
			&i.SettlementRef,
			&i.TransactionHash,
			&i.BlockNumber,
			&i.CreatedAt,
			&i.CertifiedAt,
			&i.MintedAt,
			&i.RejectedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
