package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/ledger"
	"github.com/hydrocred/hydrocred/internal/logger"
	"github.com/hydrocred/hydrocred/internal/requests"
)

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	Request requests.ProductionRequest
	Receipt ledger.Receipt

	// Reconciled is set when the settlement had already landed on an earlier attempt whose reply was lost.
	Reconciled bool
}

// ClaimMint hands the stored certification to the settlement collaborator and, once the collaborator confirms,
// moves the request to MINTED.
//
// The request stays CERTIFIED on every failure. A settlement_unknown error means the collaborator did not
// answer within the settlement timeout; the claim may be retried and a settlement that did land is picked
// up through Lookup when the collaborator reports it as already settled.
func (c *Controller) ClaimMint(ctx context.Context, requestID int64, producer common.Address) (result ClaimResult, err error) {
	event := audit.NewEvent(audit.ActionClaimMint, producer.Hex(), c.now()).ForRequest(requestID)
	defer func() {
		err = translate(err)
		event.Outcome = outcome(err)
		if reason := settlementReason(err); reason != "" {
			event.Detail = fmt.Sprintf("ledger reason=%s", reason)
		}
		c.recorder.Record(ctx, event)
		c.metrics.CountClaim(outcome(err))
	}()

	req, err := c.store.Get(ctx, requestID)
	if err != nil {
		return ClaimResult{}, err
	}
	if req.Producer != producer {
		return ClaimResult{}, NewForbiddenError("only the producer who submitted the request may claim it")
	}
	if req.Status != requests.StatusCertified {
		return ClaimResult{}, requests.NewInvalidStateError(req.ID, req.Status, requests.StatusMinted)
	}

	// the expiry check and the MINTED transition both use this instant, so a slow settlement call
	// cannot turn an accepted claim into an expired one
	asOf := c.now()
	if req.ExpiredAt(asOf) {
		return ClaimResult{}, requests.NewExpiredError(req.ID)
	}

	receipt, err := c.settle(ctx, req)
	reconciled := false
	if err != nil {
		if reason, ok := ledger.RejectionReason(err); !ok || reason != ledger.ReasonAlreadySettled {
			return ClaimResult{}, err
		}
		receipt, err = c.reconcile(ctx, req, err)
		if err != nil {
			return ClaimResult{}, err
		}
		reconciled = true
	}

	minted, err := c.store.TransitionToMinted(ctx, req.ID, requests.Settlement{
		Ref:             receipt.SettlementRef,
		TransactionHash: receipt.TransactionHash,
		BlockNumber:     receipt.BlockNumber,
	}, asOf)
	if err != nil {
		logger.ContextRequestLogger(ctx).Error("settlement confirmed but the request could not be marked minted",
			slog.Int64("request_id", req.ID),
			slog.String("settlement_ref", receipt.SettlementRef),
			slog.String("error", err.Error()),
		)
		return ClaimResult{}, err
	}

	event.Detail = fmt.Sprintf("settlement=%s reconciled=%t", receipt.SettlementRef, reconciled)
	logger.ContextRequestLogger(ctx).Info("production request minted",
		slog.Int64("request_id", req.ID),
		slog.String("settlement_ref", receipt.SettlementRef),
		slog.Bool("reconciled", reconciled),
	)
	return ClaimResult{Request: minted, Receipt: receipt, Reconciled: reconciled}, nil
}

type settleResult struct {
	receipt ledger.Receipt
	err     error
}

// settle calls the collaborator under the settlement timeout. The timeout is enforced here even if the
// collaborator ignores its context.
func (c *Controller) settle(ctx context.Context, req requests.ProductionRequest) (ledger.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SettlementTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan settleResult, 1)
	go func() {
		receipt, err := c.settler.Settle(ctx, req.Payload(), req.CertificationSignature)
		done <- settleResult{receipt: receipt, err: err}
	}()

	var res settleResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ledger.WrapUnknownError(ctx.Err(), "settlement timed out")
	}

	if res.err == nil && res.receipt.RequestID != 0 && res.receipt.RequestID != req.ID {
		res.err = ledger.NewUnknownError(fmt.Sprintf("settlement receipt names request %d", res.receipt.RequestID))
	}
	if res.err != nil && ledger.ErrorCodeOf(res.err) == "" {
		res.err = ledger.WrapUnknownError(res.err, "settlement failed")
	}

	c.metrics.ObserveSettlement(outcome(translate(res.err)), time.Since(start))
	if ledger.ErrorCodeOf(res.err) == ledger.ErrCodeUnknown {
		logger.ContextRequestLogger(ctx).Warn("settlement outcome unknown",
			slog.Int64("request_id", req.ID),
			slog.String("error", res.err.Error()),
		)
	}
	return res.receipt, res.err
}

// reconcile resolves an already-settled rejection by fetching the settlement that landed earlier.
func (c *Controller) reconcile(ctx context.Context, req requests.ProductionRequest, cause error) (ledger.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SettlementTimeout)
	defer cancel()

	receipt, err := c.settler.Lookup(ctx, req.ID)
	switch {
	case ledger.ErrorCodeOf(err) == ledger.ErrCodeNotFound:
		return ledger.Receipt{}, cause
	case err != nil:
		if ledger.ErrorCodeOf(err) == "" {
			err = ledger.WrapUnknownError(err, "settlement lookup failed")
		}
		return ledger.Receipt{}, err
	case receipt.RequestID != req.ID || receipt.SettlementRef == "":
		return ledger.Receipt{}, cause
	}

	logger.ContextRequestLogger(ctx).Info("reconciled earlier settlement",
		slog.Int64("request_id", req.ID),
		slog.String("settlement_ref", receipt.SettlementRef),
	)
	return receipt, nil
}

func settlementReason(err error) ledger.Reason {
	if wfErr, ok := err.(*Error); ok {
		return wfErr.reason
	}
	return ""
}
