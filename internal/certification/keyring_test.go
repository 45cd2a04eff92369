package certification

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestSaveAndLoadKeyring(t *testing.T) {
	dir := t.TempDir()

	first, second := mustKey(t), mustKey(t)
	addr1, _, err := SaveKey(dir, first)
	if err != nil {
		t.Fatalf("SaveKey() error = %v", err)
	}
	addr2, _, err := SaveKey(dir, second)
	if err != nil {
		t.Fatalf("SaveKey() error = %v", err)
	}

	// unrelated files are ignored
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("certifier keys"), 0600); err != nil {
		t.Fatal(err)
	}

	keyring, err := LoadKeyring(dir)
	if err != nil {
		t.Fatalf("LoadKeyring() error = %v", err)
	}
	if !keyring.Has(addr1) || !keyring.Has(addr2) {
		t.Fatalf("expected both certifiers in keyring, got %v", keyring.Addresses())
	}
	if got := len(keyring.Addresses()); got != 2 {
		t.Errorf("expected 2 addresses, got %d", got)
	}

	err = keyring.WithSigner(addr1, func(s *Signer) error {
		if s.Address() != addr1 {
			t.Errorf("WithSigner gave signer %s, want %s", s.Address().Hex(), addr1.Hex())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSigner() error = %v", err)
	}
}

func TestSaveKeyRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	key := mustKey(t)
	if _, _, err := SaveKey(dir, key); err != nil {
		t.Fatalf("SaveKey() error = %v", err)
	}
	if _, _, err := SaveKey(dir, key); ErrorCodeOf(err) != ErrCodeKeyManagement {
		t.Errorf("expected key management error on overwrite, got %v", err)
	}
}

func TestLoadKeyringErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		if _, err := LoadKeyring(filepath.Join(t.TempDir(), "absent")); ErrorCodeOf(err) != ErrCodeKeyManagement {
			t.Errorf("expected key management error, got %v", err)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		if _, err := LoadKeyring(t.TempDir()); ErrorCodeOf(err) != ErrCodeKeyManagement {
			t.Errorf("expected key management error, got %v", err)
		}
	})

	t.Run("file named after a different address", func(t *testing.T) {
		dir := t.TempDir()
		key := mustKey(t)
		wrong := common.HexToAddress("0x00000000000000000000000000000000000000aa")
		if err := crypto.SaveECDSA(filepath.Join(dir, wrong.Hex()+KeyFileExtension), key); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadKeyring(dir); ErrorCodeOf(err) != ErrCodeKeyManagement {
			t.Errorf("expected key management error, got %v", err)
		}
	})

	t.Run("file not named after an address", func(t *testing.T) {
		dir := t.TempDir()
		if err := crypto.SaveECDSA(filepath.Join(dir, "certifier"+KeyFileExtension), mustKey(t)); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadKeyring(dir); ErrorCodeOf(err) != ErrCodeKeyManagement {
			t.Errorf("expected key management error, got %v", err)
		}
	})
}

func TestWithSignerUnknownCertifier(t *testing.T) {
	keyring := NewKeyring(mustKey(t))
	called := false
	err := keyring.WithSigner(common.HexToAddress("0x00000000000000000000000000000000000000bb"), func(*Signer) error {
		called = true
		return nil
	})
	if called {
		t.Error("fn must not be called for an unknown certifier")
	}
	if ErrorCodeOf(err) != ErrCodeKeyManagement {
		t.Errorf("expected key management error, got %v", err)
	}
}

func TestWithSignerPropagatesError(t *testing.T) {
	key := mustKey(t)
	keyring := NewKeyring(key)
	want := errors.New("sign failed")
	err := keyring.WithSigner(crypto.PubkeyToAddress(key.PublicKey), func(*Signer) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}
