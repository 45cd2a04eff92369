package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/config"
	"github.com/hydrocred/hydrocred/internal/database"
	"github.com/hydrocred/hydrocred/internal/ledger"
	"github.com/hydrocred/hydrocred/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.ServerEnvironment {
	t.Helper()
	dir := t.TempDir()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, _, err = certification.SaveKey(dir, key)
	require.NoError(t, err)

	return &config.ServerEnvironment{
		Environment:             "test",
		SigningDomainName:       "HydroCred",
		SigningDomainVersion:    "1",
		ChainID:                 31337,
		VerifyingContract:       "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		CertifierKeysDir:        dir,
		DefaultCertificationTTL: time.Hour,
		MaxCertificationTTL:     24 * time.Hour,
		LedgerMode:              "simulator",
		SettlementTimeout:       time.Second,
		IdentityCacheTTL:        time.Second,
		IdentityCacheSize:       10,
	}
}

func TestNewSettler(t *testing.T) {
	cfg := testConfig(t)
	keyring, err := certification.LoadKeyring(cfg.CertifierKeysDir)
	require.NoError(t, err)
	codec := certification.NewEIP712Codec()

	tests := []struct {
		name     string
		mode     string
		url      string
		wantType any
		wantErr  bool
	}{
		{"simulator", "simulator", "", &ledger.Simulator{}, false},
		{"gateway", "gateway", "https://ledger.example/", &ledger.GatewayClient{}, false},
		{"gateway without url", "gateway", "", nil, true},
		{"unknown mode", "carrier-pigeon", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			c.LedgerMode = tt.mode
			c.LedgerGatewayURL = tt.url

			settler, err := NewSettler(&c, codec, c.SigningDomain(), keyring)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, settler)
		})
	}
}

func TestNewServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditLogPath = filepath.Join(t.TempDir(), "audit.jsonl")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServices(context.Background(), cfg, database.New(nil), metrics.New(), logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	assert.NotNil(t, s.Workflow)
	assert.NotNil(t, s.Identities)
	assert.NotNil(t, s.AuditLog)
	assert.IsType(t, &ledger.Simulator{}, s.Settler)
	assert.Equal(t, cfg.SigningDomain(), s.Workflow.Domain())
	assert.Len(t, s.Workflow.Certifiers(), 1)
}

func TestNewServicesMissingKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.CertifierKeysDir = t.TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewServices(context.Background(), cfg, database.New(nil), nil, logger)
	assert.Error(t, err)
}
