package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/audit"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/config"
	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/hydrocred/hydrocred/internal/identity"
	"github.com/hydrocred/hydrocred/internal/ledger"
	"github.com/hydrocred/hydrocred/internal/metrics"
	"github.com/hydrocred/hydrocred/internal/requests"
	"github.com/hydrocred/hydrocred/internal/workflow"
)

// Services aggregates the collaborators used by the HTTP handlers.
type Services struct {
	Workflow   *workflow.Controller
	Identities *identity.Service
	AuditLog   *audit.DatabaseSink
	Settler    ledger.Settler
	Metrics    *metrics.Metrics

	// Certifiers are the authority addresses this deployment holds signing keys for
	Certifiers []common.Address

	directory *identity.CachedDirectory
	jsonl     *audit.JSONLSink
}

// NewServices creates the service implementations based on configuration.
// This is the single entry point for initializing the workflow and its collaborators.
func NewServices(ctx context.Context, cfg *config.ServerEnvironment, queries *database.Queries, m *metrics.Metrics, logger *slog.Logger) (*Services, error) {
	s := &Services{Metrics: m}

	keyring, err := certification.LoadKeyring(cfg.CertifierKeysDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load certifier keys: %w", err)
	}
	s.Certifiers = keyring.Addresses()
	logger.Info("certifier keys loaded", slog.Int("keys", len(s.Certifiers)))

	s.AuditLog = audit.NewDatabaseSink(queries)
	sinks := audit.MultiSink{s.AuditLog}
	if cfg.AuditLogPath != "" {
		s.jsonl, err = audit.NewJSONLSink(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, s.jsonl)
	}
	recorder := audit.NewRecorder(sinks)

	store := identity.NewDatabaseDirectory(queries)
	var reader identity.Directory = store
	if cfg.IdentityCacheTTL > 0 {
		cached := identity.NewCachedDirectory(store, cfg.IdentityCacheSize, cfg.IdentityCacheTTL)
		s.directory = cached.(*identity.CachedDirectory)
		reader = cached
	}
	s.Identities = identity.NewService(store, reader, recorder)

	codec := certification.NewEIP712Codec()
	domain := cfg.SigningDomain()

	s.Settler, err = NewSettler(cfg, codec, domain, keyring)
	if err != nil {
		s.Close()
		return nil, err
	}
	logger.Info("settlement collaborator configured", slog.String("mode", cfg.LedgerMode))

	s.Workflow, err = workflow.NewController(workflow.Dependencies{
		Directory: reader,
		Store:     requests.NewPostgresStore(queries),
		Codec:     codec,
		Keyring:   keyring,
		Settler:   s.Settler,
		Recorder:  recorder,
		Metrics:   m,
	}, workflow.Config{
		Domain:                 domain,
		DefaultTTL:             cfg.DefaultCertificationTTL,
		MaxTTL:                 cfg.MaxCertificationTTL,
		SettlementTimeout:      cfg.SettlementTimeout,
		RejectDuplicateBatches: cfg.RejectDuplicateBatches,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close stops the identity cache and closes the audit log file.
func (s *Services) Close() {
	if s.directory != nil {
		s.directory.Stop()
	}
	if s.jsonl != nil {
		_ = s.jsonl.Close()
	}
}
