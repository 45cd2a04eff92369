// Package workflow orchestrates the production request lifecycle: submission, certification, rejection and
// the claim that converts a certification into a ledger settlement.
//
// Every operation loads the identities it needs from the directory, checks authorization against the
// producer jurisdiction recorded on the request at submission, and leaves state changes to the request store,
// which enforces the state machine and the duplicate-batch rule atomically. Each invocation records one audit
// event whatever its outcome.
package workflow

import (
	"errors"
	"time"

	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/ledger"
	"github.com/hydrocred/hydrocred/internal/metrics"
	"github.com/hydrocred/hydrocred/internal/requests"
)

// Config holds the workflow policy settings.
type Config struct {
	Domain certification.Domain

	// DefaultTTL is used when certify is called without a ttl. MaxTTL caps the ttl a certifier may request.
	DefaultTTL time.Duration
	MaxTTL     time.Duration

	// SettlementTimeout bounds each call to the settlement collaborator.
	SettlementTimeout time.Duration

	// RejectDuplicateBatches moves a request that loses a duplicate-batch conflict to REJECTED.
	// When false it stays PENDING.
	RejectDuplicateBatches bool
}

// Dependencies are the collaborators used by the Controller. Recorder and Metrics may be nil.
type Dependencies struct {
	Directory identity.Directory
	Store     requests.Store
	Codec     certification.Codec
	Keyring   *certification.Keyring
	Settler   ledger.Settler
	Recorder  *audit.Recorder
	Metrics   *metrics.Metrics
}

type Controller struct {
	directory identity.Directory
	store     requests.Store
	codec     certification.Codec
	keyring   *certification.Keyring
	settler   ledger.Settler
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
	cfg       Config
	now       func() time.Time
}

func NewController(deps Dependencies, cfg Config) (*Controller, error) {
	switch {
	case deps.Directory == nil:
		return nil, errors.New("workflow: identity directory is required")
	case deps.Store == nil:
		return nil, errors.New("workflow: request store is required")
	case deps.Codec == nil:
		return nil, errors.New("workflow: certification codec is required")
	case deps.Keyring == nil:
		return nil, errors.New("workflow: certifier keyring is required")
	case deps.Settler == nil:
		return nil, errors.New("workflow: settlement collaborator is required")
	}
	if cfg.DefaultTTL <= 0 {
		return nil, errors.New("workflow: default certification ttl must be positive")
	}
	if cfg.MaxTTL < cfg.DefaultTTL {
		return nil, errors.New("workflow: max certification ttl must not be less than the default")
	}
	if cfg.SettlementTimeout <= 0 {
		return nil, errors.New("workflow: settlement timeout must be positive")
	}

	return &Controller{
		directory: deps.Directory,
		store:     deps.Store,
		codec:     deps.Codec,
		keyring:   deps.Keyring,
		settler:   deps.Settler,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Domain returns the signing domain certifications are bound to.
func (c *Controller) Domain() certification.Domain {
	return c.cfg.Domain
}

// Certifiers returns the authorities this deployment holds signing keys for.
func (c *Controller) Certifiers() []string {
	addrs := c.keyring.Addresses()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}
