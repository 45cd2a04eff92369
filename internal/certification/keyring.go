package certification

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyFileExtension is the suffix of certifier key files: <address>.key holding a hex secp256k1 private key.
const KeyFileExtension = ".key"

// Signer holds a certifier's private key. It is only handed out by Keyring.WithSigner.
type Signer struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// NewSigner wraps a private key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

func (s *Signer) Address() common.Address {
	return s.address
}

// String never includes key material.
func (s *Signer) String() string {
	return fmt.Sprintf("Signer(%s)", s.address.Hex())
}

// LogValue never includes key material.
func (s *Signer) LogValue() slog.Value {
	return slog.GroupValue(slog.String("address", s.address.Hex()))
}

// Keyring holds the certifier keys available to this server.
type Keyring struct {
	mu      sync.Mutex
	signers map[common.Address]*Signer
}

// NewKeyring returns a keyring holding the given keys.
func NewKeyring(keys ...*ecdsa.PrivateKey) *Keyring {
	k := &Keyring{signers: make(map[common.Address]*Signer, len(keys))}
	for _, key := range keys {
		s := NewSigner(key)
		k.signers[s.address] = s
	}
	return k
}

// LoadKeyring loads every <address>.key file in dir.
// The file name must match the address derived from the key.
func LoadKeyring(dir string) (*Keyring, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to read certifier keys directory %s", dir))
	}

	k := &Keyring{signers: make(map[common.Address]*Signer)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), KeyFileExtension) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), KeyFileExtension)
		if !common.IsHexAddress(name) {
			return nil, NewKeyManagementError(fmt.Sprintf("key file %s is not named after an address", entry.Name()))
		}

		key, err := crypto.LoadECDSA(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to load key file %s", entry.Name()))
		}
		s := NewSigner(key)
		if s.address != common.HexToAddress(name) {
			return nil, NewKeyManagementError(fmt.Sprintf("key file %s holds the key for %s", entry.Name(), s.address.Hex()))
		}
		k.signers[s.address] = s
	}

	if len(k.signers) == 0 {
		return nil, NewKeyManagementError(fmt.Sprintf("no certifier keys found in %s", dir))
	}
	return k, nil
}

// SaveKey writes key to dir as <address>.key and returns the address.
func SaveKey(dir string, key *ecdsa.PrivateKey) (common.Address, string, error) {
	address := crypto.PubkeyToAddress(key.PublicKey)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return common.Address{}, "", WrapKeyManagementError(err, "failed to create keys directory")
	}
	path := filepath.Join(dir, address.Hex()+KeyFileExtension)
	if _, err := os.Stat(path); err == nil {
		return common.Address{}, "", NewKeyManagementError(fmt.Sprintf("key file %s already exists", path))
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return common.Address{}, "", WrapKeyManagementError(err, "failed to save key")
	}
	return address, path, nil
}

// Has reports whether the keyring holds a key for address.
func (k *Keyring) Has(address common.Address) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.signers[address]
	return ok
}

// Addresses returns the certifier addresses in the keyring, sorted.
func (k *Keyring) Addresses() []common.Address {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]common.Address, 0, len(k.signers))
	for a := range k.signers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// WithSigner calls fn with the signer for address. fn must not retain the signer.
// Calls are serialised.
func (k *Keyring) WithSigner(address common.Address, fn func(*Signer) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.signers[address]
	if !ok {
		return NewKeyManagementError(fmt.Sprintf("no signing key held for certifier %s", address.Hex()))
	}
	return fn(s)
}
