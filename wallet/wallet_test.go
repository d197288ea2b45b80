package wallet

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tolelom/arcadechain/core"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate("test-chain")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "session.key")
	if err := SaveKey(path, "hunter2", w.PrivKey()); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	priv, err := LoadKey(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if priv.Public().Hex() != w.Address() {
		t.Error("loaded key does not match saved key")
	}
	if _, err := LoadKey(path, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("expected ErrWrongPassword, got %v", err)
	}
}

func TestKeystoreRejectsUnknownKDF(t *testing.T) {
	w, _ := Generate("test-chain")
	path := filepath.Join(t.TempDir(), "node.key")
	if err := SaveKey(path, "pw", w.PrivKey()); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var ks map[string]any
	if err := json.Unmarshal(data, &ks); err != nil {
		t.Fatal(err)
	}
	if ks["iterations"] != float64(kdfIterations) {
		t.Errorf("iterations = %v, want %d", ks["iterations"], kdfIterations)
	}
	ks["kdf"] = "scrypt"
	data, _ = json.Marshal(ks)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKey(path, "pw"); err == nil {
		t.Error("expected unsupported kdf error")
	}
}

func TestApplyMoveIsSignedForChain(t *testing.T) {
	w, _ := Generate("arena-1")
	tx, err := w.ApplyMove(7, map[string]string{"dir": "left"}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tx.ChainID != "arena-1" || tx.Type != core.TxApplyMove || tx.Nonce != 3 {
		t.Errorf("unexpected tx header: %+v", tx)
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	tx.ChainID = "arena-2"
	if err := tx.Verify(); err == nil {
		t.Error("chain id change should break the signature")
	}
}
