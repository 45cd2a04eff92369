package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/evidence"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/logger"
	"github.com/hydrocred/hydrocred/internal/requests"
)

// Submit records a new PENDING production request for producer.
// The producer must be a verified PRODUCER identity; its current jurisdiction is recorded on the request
// and is the jurisdiction later certification is authorized against.
func (c *Controller) Submit(ctx context.Context, producer common.Address, amount int64, bundle evidence.Bundle) (result requests.ProductionRequest, err error) {
	event := audit.NewEvent(audit.ActionSubmit, producer.Hex(), c.now())
	defer func() {
		err = translate(err)
		if err == nil {
			event = event.ForRequest(result.ID)
		}
		event.Outcome = outcome(err)
		c.recorder.Record(ctx, event)
		c.metrics.CountSubmission(outcome(err))
	}()

	p, err := c.lookupActor(ctx, producer)
	if err != nil {
		return requests.ProductionRequest{}, err
	}
	if p.Role != identity.RoleProducer {
		return requests.ProductionRequest{}, NewForbiddenError(fmt.Sprintf("role %s cannot submit production requests", p.Role))
	}
	if !p.Verified {
		return requests.ProductionRequest{}, NewForbiddenError("producer identity is not verified")
	}
	if amount <= 0 {
		return requests.ProductionRequest{}, requests.NewInvalidAmountError(amount)
	}

	fingerprint, err := evidence.Fingerprint(bundle)
	if err != nil {
		if errors.Is(err, evidence.ErrInvalidBundle) {
			return requests.ProductionRequest{}, NewValidationError(err.Error())
		}
		return requests.ProductionRequest{}, WrapInternalError(err, "failed to fingerprint evidence")
	}
	event.Detail = fmt.Sprintf("amount=%d fingerprint=%s", amount, fingerprint)

	created, err := c.store.Create(ctx, requests.NewRequest{
		Producer:             producer,
		ProducerJurisdiction: p.Jurisdiction,
		Amount:               amount,
		EvidenceFingerprint:  fingerprint,
		Evidence:             bundle,
	})
	if err != nil {
		return requests.ProductionRequest{}, err
	}

	logger.ContextRequestLogger(ctx).Info("production request submitted",
		slog.Int64("request_id", created.ID),
		slog.String("producer", producer.Hex()),
		slog.Int64("amount", amount),
	)
	return created, nil
}

// lookupActor returns the identity acting on a request. Unregistered wallets are forbidden, not missing.
func (c *Controller) lookupActor(ctx context.Context, address common.Address) (identity.Identity, error) {
	id, err := c.directory.Lookup(ctx, address)
	if err != nil {
		if identity.ErrorCodeOf(err) == identity.ErrCodeNotFound {
			return identity.Identity{}, NewForbiddenError(fmt.Sprintf("wallet %s is not a registered identity", address.Hex()))
		}
		return identity.Identity{}, err
	}
	return id, nil
}
