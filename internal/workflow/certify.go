package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/logger"
	"github.com/hydrocred/hydrocred/internal/requests"
)

const duplicateBatchReason = "duplicate batch"

// CertifyResult is returned by a successful certification.
type CertifyResult struct {
	Request   requests.ProductionRequest
	Domain    certification.Domain
	Payload   certification.Payload
	Signature []byte
}

// Certify signs the certification payload for a PENDING request as authority and records it.
//
// A ttl of zero selects the configured default. The signature is only returned once the store has accepted
// the transition; if the store refuses it (for example because the batch was certified concurrently under
// another request) the signature is discarded.
func (c *Controller) Certify(ctx context.Context, requestID int64, authority common.Address, ttl time.Duration) (result CertifyResult, err error) {
	event := audit.NewEvent(audit.ActionCertify, authority.Hex(), c.now()).ForRequest(requestID)
	defer func() {
		err = translate(err)
		event.Outcome = outcome(err)
		c.recorder.Record(ctx, event)
		c.metrics.CountCertification(outcome(err))
	}()

	req, err := c.store.Get(ctx, requestID)
	if err != nil {
		return CertifyResult{}, err
	}
	if err := c.authorizeCertifier(ctx, authority, req); err != nil {
		return CertifyResult{}, err
	}
	if req.Status != requests.StatusPending {
		return CertifyResult{}, requests.NewInvalidStateError(req.ID, req.Status, requests.StatusCertified)
	}

	ttl, err = c.resolveTTL(ttl)
	if err != nil {
		return CertifyResult{}, err
	}
	if !c.keyring.Has(authority) {
		return CertifyResult{}, NewForbiddenError(fmt.Sprintf("no certification key is held for authority %s", authority.Hex()))
	}

	// payload expiry has whole-second precision; round up so the certification lives at least ttl
	expiry := c.now().Add(ttl + time.Second - 1).Truncate(time.Second)
	payload := certification.Payload{
		Producer:  req.Producer,
		Amount:    req.Amount,
		RequestID: req.ID,
		Expiry:    expiry.Unix(),
		Certifier: authority,
	}

	var signature []byte
	err = c.keyring.WithSigner(authority, func(signer *certification.Signer) error {
		sig, err := c.codec.Sign(signer, c.cfg.Domain, payload)
		signature = sig
		return err
	})
	if err != nil {
		return CertifyResult{}, err
	}

	updated, err := c.store.TransitionToCertified(ctx, req.ID, requests.Certification{
		Certifier: authority,
		Signature: signature,
		Expiry:    expiry,
	})
	if err != nil {
		discard(signature)
		if requests.ErrorCodeOf(err) == requests.ErrCodeDuplicateBatch && c.cfg.RejectDuplicateBatches {
			c.rejectDuplicate(ctx, req.ID)
			event.Detail = "request rejected as a duplicate batch"
		}
		return CertifyResult{}, err
	}

	event.Detail = fmt.Sprintf("ttl=%s expiry=%d", ttl, payload.Expiry)
	logger.ContextRequestLogger(ctx).Info("production request certified",
		slog.Int64("request_id", req.ID),
		slog.String("certifier", authority.Hex()),
		slog.Time("expiry", expiry),
	)
	return CertifyResult{
		Request:   updated,
		Domain:    c.cfg.Domain,
		Payload:   payload,
		Signature: signature,
	}, nil
}

// Reject moves a PENDING request to REJECTED. The same authorities that may certify a request may reject it.
func (c *Controller) Reject(ctx context.Context, requestID int64, authority common.Address, reason string) (result requests.ProductionRequest, err error) {
	event := audit.NewEvent(audit.ActionReject, authority.Hex(), c.now()).ForRequest(requestID)
	defer func() {
		err = translate(err)
		event.Outcome = outcome(err)
		c.recorder.Record(ctx, event)
		c.metrics.CountRejection(outcome(err))
	}()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return requests.ProductionRequest{}, NewValidationError("a rejection reason is required")
	}
	event.Detail = reason

	req, err := c.store.Get(ctx, requestID)
	if err != nil {
		return requests.ProductionRequest{}, err
	}
	if err := c.authorizeCertifier(ctx, authority, req); err != nil {
		return requests.ProductionRequest{}, err
	}

	rejected, err := c.store.TransitionToRejected(ctx, req.ID, reason)
	if err != nil {
		return requests.ProductionRequest{}, err
	}

	logger.ContextRequestLogger(ctx).Info("production request rejected",
		slog.Int64("request_id", req.ID),
		slog.String("authority", authority.Hex()),
	)
	return rejected, nil
}

func (c *Controller) authorizeCertifier(ctx context.Context, authority common.Address, req requests.ProductionRequest) error {
	a, err := c.lookupActor(ctx, authority)
	if err != nil {
		return err
	}
	if !identity.CanCertify(a, req.ProducerJurisdiction) {
		return NewForbiddenError(identity.ForbiddenCertifyReason(a, req.ProducerJurisdiction))
	}
	return nil
}

func (c *Controller) resolveTTL(ttl time.Duration) (time.Duration, error) {
	switch {
	case ttl == 0:
		return c.cfg.DefaultTTL, nil
	case ttl < time.Second:
		return 0, NewValidationError("certification ttl must be at least one second")
	case ttl > c.cfg.MaxTTL:
		return 0, NewValidationError(fmt.Sprintf("certification ttl must not exceed %s", c.cfg.MaxTTL))
	}
	return ttl, nil
}

// rejectDuplicate applies the reject-duplicates policy. Failure is logged; the caller already reports the duplicate.
func (c *Controller) rejectDuplicate(ctx context.Context, requestID int64) {
	if _, err := c.store.TransitionToRejected(ctx, requestID, duplicateBatchReason); err != nil {
		logger.ContextRequestLogger(ctx).Warn("failed to reject duplicate batch",
			slog.Int64("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

func discard(signature []byte) {
	for i := range signature {
		signature[i] = 0
	}
}
