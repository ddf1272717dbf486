package util

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	err = os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPublicKeyFile(t *testing.T) {
	path := writeTestKey(t)
	if _, err := PublicKeyFile(path); err != nil {
		t.Fatal(err)
	}

	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := PublicKeyFile(missing); err == nil {
		t.Error("expected error for missing key file")
	}

	// Garbage key data is rejected.
	bad := filepath.Join(t.TempDir(), "bad")
	if err := os.WriteFile(bad, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := PublicKeyFile(bad); err == nil {
		t.Error("expected error for malformed key")
	}
}
