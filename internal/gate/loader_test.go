package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/provara/provara/internal/crypto"
)

func TestLoadGates(t *testing.T) {
	loaded, err := LoadGates("../../gates/provara.yaml")
	if err != nil {
		t.Fatalf("load gates: %v", err)
	}

	if len(loaded.Gates) == 0 {
		t.Fatalf("no gates loaded")
	}
	if loaded.Gates[0].GateID == "" {
		t.Fatalf("gate id missing")
	}

	data, err := os.ReadFile("../../gates/provara.yaml")
	if err != nil {
		t.Fatalf("read gates: %v", err)
	}

	expected := crypto.DigestWithPrefix(data)
	if loaded.Hash != expected {
		t.Fatalf("gates hash mismatch: got %s want %s", loaded.Hash, expected)
	}
}

func TestLoadGatesRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gates.yaml")
	content := []byte("gates:\n  - gate_id: dup\n    phase: release\n  - gate_id: dup\n    phase: release\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write gates: %v", err)
	}

	if _, err := LoadGates(path); err == nil {
		t.Fatalf("expected duplicate gate_id error")
	}
}
