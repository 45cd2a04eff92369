package services

import (
	"fmt"
	"net/http"

	"github.com/hydrocred/hydrocred/internal/certification"
	"github.com/hydrocred/hydrocred/internal/config"
	"github.com/hydrocred/hydrocred/internal/ledger"
)

// NewSettler creates the settlement collaborator selected by LEDGER_MODE.
//
//   - gateway: the ledger gateway service at LEDGER_GATEWAY_URL
//   - simulator: an in-process ledger that trusts the certifiers in keyring (dev/test only)
func NewSettler(cfg *config.ServerEnvironment, codec certification.Codec, domain certification.Domain, keyring *certification.Keyring) (ledger.Settler, error) {
	switch cfg.LedgerMode {
	case "gateway":
		return ledger.NewGatewayClient(ledger.GatewayConfig{
			URL:        cfg.LedgerGatewayURL,
			AuthToken:  cfg.LedgerAuthToken,
			Timeout:    2 * cfg.SettlementTimeout,
			HTTPClient: &http.Client{},
		})

	case "simulator":
		return ledger.NewSimulator(codec, domain, keyring.Addresses()...), nil

	default:
		return nil, fmt.Errorf("unsupported ledger mode: %s", cfg.LedgerMode)
	}
}
