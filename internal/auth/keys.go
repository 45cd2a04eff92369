package auth

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
)

// loadManualKeys loads single-key JWK files from dir. Files that cannot be used are skipped and logged.
//
// Supported file extensions: .jwk, .jwks, .jwks.json
func (v *Verifier) loadManualKeys(dir string) error {
	v.logger.Info("loading session keys", slog.String("dir", dir))

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfigError(fmt.Sprintf("session keys directory (%v) does not exist", dir))
		}
		return WrapKeyError(err, "failed to stat session keys directory")
	}
	if !info.IsDir() {
		return NewConfigError(fmt.Sprintf("session keys path is not a directory: %s", dir))
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return WrapKeyError(err, "failed to open session keys directory")
	}
	defer root.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return WrapKeyError(err, "failed to read session keys directory")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := entry.Name()
		if !strings.HasSuffix(filename, ".jwk") && !strings.HasSuffix(filename, ".jwks") && !strings.HasSuffix(filename, ".jwks.json") {
			continue
		}

		data, err := root.ReadFile(filename)
		if err != nil {
			v.logger.Error("skipping: failed to read session key file",
				slog.String("file", filename),
				slog.String("error", err.Error()))
			continue
		}

		keySet, err := jwk.Parse(data)
		if err != nil {
			v.logger.Error("skipping: failed to parse session key file",
				slog.String("file", filename),
				slog.String("error", err.Error()))
			continue
		}
		if keySet.Len() != 1 {
			v.logger.Error("skipping: session key file must contain exactly one key",
				slog.String("file", filename),
				slog.Int("key_count", keySet.Len()),
				slog.String("hint", "use a JWKS endpoint for key rotation"))
			continue
		}

		key, _ := keySet.Key(0)
		keyID, ok := key.KeyID()
		if !ok || keyID == "" {
			v.logger.Error("skipping: session key missing kid", slog.String("file", filename))
			continue
		}

		keyType, err := publicKeyType(key)
		if err != nil {
			v.logger.Warn("skipping: file does not contain a RSA or Ed25519 public key",
				slog.String("file", filename),
				slog.String("error", err.Error()))
			continue
		}

		v.manualKeys[keyID] = key
		v.logger.Info("session key loaded",
			slog.String("file", filename),
			slog.String("kid", keyID),
			slog.String("key_type", keyType))
	}

	return nil
}

// publicKeyType accepts RSA and Ed25519 public keys only.
func publicKeyType(key jwk.Key) (string, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return "", WrapKeyError(err, "failed to export key")
	}
	switch v := raw.(type) {
	case *rsa.PublicKey:
		return "RSA public key", nil
	case ed25519.PublicKey:
		return "Ed25519 public key", nil
	default:
		return "", NewKeyError(fmt.Sprintf("unsupported key type %T", v))
	}
}

// initJWKCache registers the JWKS endpoint with a background-refreshing cache.
func (v *Verifier) initJWKCache(ctx context.Context, cfg VerifierConfig) error {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return WrapKeyError(err, "failed to create JWK cache")
	}

	err = cache.Register(ctx, cfg.JWKSURL,
		jwk.WithMinInterval(cfg.MinRefreshInterval),
		jwk.WithMaxInterval(cfg.MaxRefreshInterval),
		jwk.WithWaitReady(false), // fetch in the background, don't block startup
	)
	if err != nil {
		return WrapKeyError(err, fmt.Sprintf("failed to register JWKS endpoint %s", cfg.JWKSURL))
	}

	v.jwkCache = cache
	v.jwksURL = cfg.JWKSURL
	v.logger.Info("registered session JWKS endpoint for background fetch", slog.String("jwk_url", cfg.JWKSURL))
	return nil
}

// FetchKeys implements jws.KeyProvider: the key is chosen by the kid in the token header, manual keys first.
func (v *Verifier) FetchKeys(ctx context.Context, sink jws.KeySink, sig *jws.Signature, _ *jws.Message) error {
	kid, ok := sig.ProtectedHeaders().KeyID()
	if !ok || kid == "" {
		return NewInvalidTokenError("kid is required in the token header")
	}
	alg, ok := sig.ProtectedHeaders().Algorithm()
	if !ok {
		return NewInvalidTokenError("alg is required in the token header")
	}

	v.mu.RLock()
	key, exists := v.manualKeys[kid]
	v.mu.RUnlock()
	if exists {
		sink.Key(alg, key)
		return nil
	}

	if v.jwkCache != nil {
		keySet, err := v.jwkCache.Lookup(ctx, v.jwksURL)
		if err != nil {
			v.logger.Debug("failed to lookup session JWK set from cache",
				slog.String("jwk_url", v.jwksURL),
				slog.String("error", err.Error()))
		} else if key, found := keySet.LookupKeyID(kid); found {
			sink.Key(alg, key)
			return nil
		}
	}

	return NewKeyError(fmt.Sprintf("key not found: %s", kid))
}

// GenerateSessionKey creates an Ed25519 key pair for signing session tokens.
// The kid of both keys is the first 16 hex characters of the RFC 7638 thumbprint.
func GenerateSessionKey() (private jwk.Key, public jwk.Key, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, WrapKeyError(err, "failed to generate Ed25519 key")
	}

	public, err = jwk.Import(pub)
	if err != nil {
		return nil, nil, WrapKeyError(err, "failed to import public key")
	}
	thumbprint, err := public.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, nil, WrapKeyError(err, "failed to generate thumbprint")
	}
	keyID := fmt.Sprintf("%x", thumbprint)[:16]

	private, err = jwk.Import(priv)
	if err != nil {
		return nil, nil, WrapKeyError(err, "failed to import private key")
	}

	for _, k := range []jwk.Key{private, public} {
		if err := k.Set(jwk.KeyIDKey, keyID); err != nil {
			return nil, nil, WrapKeyError(err, "failed to set kid")
		}
		if err := k.Set(jwk.AlgorithmKey, jwa.EdDSA()); err != nil {
			return nil, nil, WrapKeyError(err, "failed to set alg")
		}
		if err := k.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
			return nil, nil, WrapKeyError(err, "failed to set use")
		}
	}
	return private, public, nil
}

// SaveKey writes key as a single-key JWK file.
func SaveKey(key jwk.Key, path string) error {
	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return WrapKeyError(err, "failed to encode key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return WrapKeyError(err, "failed to create key directory")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return WrapKeyError(err, "failed to write key file")
	}
	return nil
}

// LoadPrivateKey reads a single-key JWK file holding a private signing key.
func LoadPrivateKey(path string) (jwk.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapKeyError(err, "failed to read key file")
	}
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, WrapKeyError(err, "failed to parse key file")
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, WrapKeyError(err, "failed to export key")
	}
	switch raw.(type) {
	case ed25519.PrivateKey, *rsa.PrivateKey:
		return key, nil
	default:
		return nil, NewKeyError(fmt.Sprintf("%s does not contain a private signing key", path))
	}
}
