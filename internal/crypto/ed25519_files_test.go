package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEd25519PrivateKey_SeedHex(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("hex:"+hex.EncodeToString(seed)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	priv, pub, err := LoadEd25519PrivateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
		t.Fatalf("unexpected key sizes: priv=%d pub=%d", len(priv), len(pub))
	}
}

func TestLoadEd25519PrivateKey_PrivateKeyBase64(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)

	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("base64:"+base64.StdEncoding.EncodeToString(priv)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, pub, err := LoadEd25519PrivateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Equal(priv) {
		t.Fatalf("loaded key mismatch")
	}
	if !pub.Equal(priv.Public().(ed25519.PublicKey)) {
		t.Fatalf("derived public key mismatch")
	}
}

func TestLoadEd25519PrivateKey_RawSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	priv, _, err := LoadEd25519PrivateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !priv.Equal(ed25519.NewKeyFromSeed(seed)) {
		t.Fatalf("loaded key mismatch")
	}
}

func TestLoadEd25519PrivateKey_BadLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("hex:00ff00"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, _, err := LoadEd25519PrivateKey(path); err == nil {
		t.Fatalf("expected error for bad key length")
	}
}
