package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Session is an authenticated caller. Wallet is taken from the token's sub claim.
type Session struct {
	Wallet    common.Address
	TokenID   string
	ExpiresAt time.Time
}

// VerifierConfig configures where session verification keys come from. At least one of JWKSURL and KeysDir is required.
type VerifierConfig struct {
	// Issuer is the expected iss claim
	Issuer string

	// JWKSURL is the session issuer's JWKS endpoint, fetched and refreshed in the background
	JWKSURL string

	// KeysDir holds manually configured public keys, one JWK per file, loaded at startup
	KeysDir string

	// SkipJWKCache disables the JWKS endpoint (useful for testing)
	SkipJWKCache bool

	MinRefreshInterval time.Duration
	MaxRefreshInterval time.Duration

	// AcceptableSkew is the clock skew allowed when checking exp, nbf and iat
	AcceptableSkew time.Duration
}

// Verifier checks session tokens presented as bearer tokens.
type Verifier struct {
	issuer string
	skew   time.Duration

	// manualKeys is keyed by kid
	manualKeys map[string]jwk.Key

	jwkCache *jwk.Cache
	jwksURL  string

	logger *slog.Logger
	mu     sync.RWMutex
	now    func() time.Time
}

// NewVerifier loads the manual keys and registers the JWKS endpoint.
func NewVerifier(ctx context.Context, cfg VerifierConfig, logger *slog.Logger) (*Verifier, error) {
	if logger == nil {
		return nil, NewConfigError("logger cannot be nil")
	}
	if cfg.Issuer == "" {
		return nil, NewConfigError("session issuer is required")
	}
	useCache := cfg.JWKSURL != "" && !cfg.SkipJWKCache
	if !useCache && cfg.KeysDir == "" {
		return nil, NewConfigError("a session JWKS URL or a session keys directory is required")
	}

	v := &Verifier{
		issuer:     cfg.Issuer,
		skew:       cfg.AcceptableSkew,
		manualKeys: make(map[string]jwk.Key),
		logger:     logger,
		now:        time.Now,
	}

	if cfg.KeysDir != "" {
		if err := v.loadManualKeys(cfg.KeysDir); err != nil {
			return nil, err
		}
		logger.Info("session keys loaded", slog.Int("keys", len(v.manualKeys)))
	}
	if useCache {
		if err := v.initJWKCache(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Verify checks the token's signature, issuer and validity window and returns the session it names.
func (v *Verifier) Verify(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, NewInvalidTokenError("session token is empty")
	}

	tok, err := jwt.Parse([]byte(token),
		jwt.WithKeyProvider(v),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if err != nil {
		return Session{}, WrapInvalidTokenError(err, "session token rejected")
	}

	sub, ok := tok.Subject()
	if !ok || !common.IsHexAddress(sub) {
		return Session{}, NewInvalidTokenError("session token subject is not a wallet address")
	}

	session := Session{Wallet: common.HexToAddress(sub)}
	if exp, ok := tok.Expiration(); ok {
		session.ExpiresAt = exp
	}
	if jti, ok := tok.JwtID(); ok {
		session.TokenID = jti
	}
	return session, nil
}

// IssueToken signs a session token for wallet. It is used by the operator CLI and tests; production sessions come
// from the external wallet-login service.
func IssueToken(key jwk.Key, issuer string, wallet common.Address, tokenID string, issuedAt time.Time, ttl time.Duration) (string, error) {
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(wallet.Hex()).
		JwtID(tokenID).
		IssuedAt(issuedAt).
		Expiration(issuedAt.Add(ttl)).
		Build()
	if err != nil {
		return "", WrapKeyError(err, "failed to build session token")
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.EdDSA(), key))
	if err != nil {
		return "", WrapKeyError(err, "failed to sign session token")
	}
	return string(signed), nil
}
