package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hydrocred/hydrocred/internal/certification"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=60s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	AllowedOrigins        []string      `env:"ALLOWED_ORIGINS,separator=|"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestSize        int64         `env:"MAX_REQUEST_SIZE,default=1048576"`

	// database settings
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// certification signing domain (EIP-712)
	SigningDomainName    string `env:"SIGNING_DOMAIN_NAME,default=HydroCred"`
	SigningDomainVersion string `env:"SIGNING_DOMAIN_VERSION,default=1"`

	// certification workflow settings
	DefaultCertificationTTL time.Duration `env:"DEFAULT_CERTIFICATION_TTL,default=24h"`
	MaxCertificationTTL     time.Duration `env:"MAX_CERTIFICATION_TTL,default=720h"`
	RejectDuplicateBatches  bool          `env:"REJECT_DUPLICATE_BATCHES,default=false"`

	// settlement (ledger collaborator) settings
	LedgerMode        string        `env:"LEDGER_MODE,default=gateway"`
	LedgerGatewayURL  string        `env:"LEDGER_GATEWAY_URL"`
	LedgerAuthToken   string        `env:"LEDGER_AUTH_TOKEN"`
	SettlementTimeout time.Duration `env:"SETTLEMENT_TIMEOUT,default=30s"`

	// session token verification
	SessionIssuer         string        `env:"SESSION_ISSUER"`
	SessionJWKSURL        string        `env:"SESSION_JWKS_URL"`
	SessionKeysDir        string        `env:"SESSION_KEYS_DIR"`
	SessionAcceptableSkew time.Duration `env:"SESSION_ACCEPTABLE_SKEW,default=30s"`

	// JWK cache settings
	SkipJWKCache        bool          `env:"SKIP_JWK_CACHE,default=false"`
	JWKCacheMinRefresh  time.Duration `env:"JWK_CACHE_MIN_REFRESH,default=10m"`
	JWKCacheMaxRefresh  time.Duration `env:"JWK_CACHE_MAX_REFRESH,default=12h"`
	JWKCacheHTTPTimeout time.Duration `env:"JWK_CACHE_HTTP_TIMEOUT,default=30s"`

	// identity directory cache (0 disables caching)
	IdentityCacheTTL  time.Duration `env:"IDENTITY_CACHE_TTL,default=10s"`
	IdentityCacheSize int64         `env:"IDENTITY_CACHE_SIZE,default=1000"`

	// optional JSONL mirror of the audit trail
	AuditLogPath string `env:"AUDIT_LOG_PATH"`

	// development only: exposes /admin/identities for onboarding test identities
	EnableAdminAPI bool `env:"ENABLE_ADMIN_API,default=false"`

	// Required configuration - must be set by environment variables
	ChainID           int64  `env:"CHAIN_ID,required=true"`
	VerifyingContract string `env:"VERIFYING_CONTRACT,required=true"`
	CertifierKeysDir  string `env:"CERTIFIER_KEYS_DIR,required=true"`
	DatabaseURL       string `env:"DATABASE_URL,required=true"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validLedgerModes = map[string]bool{
	"gateway":   true,
	"simulator": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil

}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if cfg.MaxRequestSize < 1 {
		return fmt.Errorf("MAX_REQUEST_SIZE must be at least 1 byte")
	}

	// signing domain
	if cfg.ChainID < 1 {
		return fmt.Errorf("CHAIN_ID must be a positive integer")
	}
	if !common.IsHexAddress(cfg.VerifyingContract) {
		return fmt.Errorf("VERIFYING_CONTRACT is not a valid address: %s", cfg.VerifyingContract)
	}
	if strings.TrimSpace(cfg.SigningDomainName) == "" || strings.TrimSpace(cfg.SigningDomainVersion) == "" {
		return fmt.Errorf("SIGNING_DOMAIN_NAME and SIGNING_DOMAIN_VERSION must not be empty")
	}

	if cfg.DefaultCertificationTTL <= 0 {
		return fmt.Errorf("DEFAULT_CERTIFICATION_TTL must be greater than 0")
	}
	if cfg.MaxCertificationTTL < cfg.DefaultCertificationTTL {
		return fmt.Errorf("MAX_CERTIFICATION_TTL (%s) cannot be less than DEFAULT_CERTIFICATION_TTL (%s)",
			cfg.MaxCertificationTTL, cfg.DefaultCertificationTTL)
	}

	if !validLedgerModes[cfg.LedgerMode] {
		return fmt.Errorf("invalid LEDGER_MODE: %s (must be gateway or simulator)", cfg.LedgerMode)
	}
	if cfg.LedgerMode == "gateway" && cfg.LedgerGatewayURL == "" {
		return fmt.Errorf("LEDGER_GATEWAY_URL is required when LEDGER_MODE is gateway")
	}
	if cfg.LedgerMode == "simulator" && cfg.Environment == "prod" {
		return fmt.Errorf("LEDGER_MODE simulator is not allowed in prod")
	}
	if cfg.SettlementTimeout <= 0 {
		return fmt.Errorf("SETTLEMENT_TIMEOUT must be greater than 0")
	}

	if cfg.SessionJWKSURL == "" && cfg.SessionKeysDir == "" {
		return fmt.Errorf("one of SESSION_JWKS_URL or SESSION_KEYS_DIR must be set")
	}

	if cfg.IdentityCacheTTL < 0 {
		return fmt.Errorf("IDENTITY_CACHE_TTL must be 0 or greater")
	}

	if cfg.EnableAdminAPI && cfg.Environment == "prod" {
		return fmt.Errorf("ENABLE_ADMIN_API is not allowed in prod")
	}

	return nil
}

// SigningDomain returns the EIP-712 domain certifications are bound to.
func (cfg *ServerEnvironment) SigningDomain() certification.Domain {
	return certification.Domain{
		Name:              cfg.SigningDomainName,
		Version:           cfg.SigningDomainVersion,
		ChainID:           cfg.ChainID,
		VerifyingContract: common.HexToAddress(cfg.VerifyingContract),
	}
}
