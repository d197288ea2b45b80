package session

import (
	"testing"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/internal/testutil"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/wallet"
)

func resolve(t *testing.T, st core.State, caller string) string {
	t.Helper()
	owner, err := Resolve(st, caller)
	if err != nil {
		t.Fatalf("Resolve(%s): %v", caller, err)
	}
	return owner
}

func TestBindAndResolve(t *testing.T) {
	st := testutil.NewStateDB()
	if got := resolve(t, st, "alice"); got != "alice" {
		t.Errorf("unbound caller resolves to %s", got)
	}
	if err := Bind(st, "alice", "key1"); err != nil {
		t.Fatal(err)
	}
	if got := resolve(t, st, "key1"); got != "alice" {
		t.Errorf("key1 resolves to %s, want alice", got)
	}

	// a new key replaces the old one
	if err := Bind(st, "alice", "key2"); err != nil {
		t.Fatal(err)
	}
	if got := resolve(t, st, "key1"); got != "key1" {
		t.Errorf("replaced key still resolves to %s", got)
	}

	// moving a key to another owner unlinks it from the first
	if err := Bind(st, "bob", "key2"); err != nil {
		t.Fatal(err)
	}
	if got := resolve(t, st, "key2"); got != "bob" {
		t.Errorf("key2 resolves to %s, want bob", got)
	}
	p, _ := st.GetPlayer("alice")
	if p.SessionKey != "" {
		t.Errorf("alice still lists %s", p.SessionKey)
	}
}

func TestClear(t *testing.T) {
	st := testutil.NewStateDB()
	if err := Clear(st, "alice"); err != nil {
		t.Fatalf("clear without key: %v", err)
	}
	if err := Bind(st, "alice", "key1"); err != nil {
		t.Fatal(err)
	}
	if err := Clear(st, "alice"); err != nil {
		t.Fatal(err)
	}
	if got := resolve(t, st, "key1"); got != "key1" {
		t.Errorf("cleared key resolves to %s", got)
	}
}

func TestSetSessionKeyTx(t *testing.T) {
	const chainID = "session-test"
	st := testutil.NewStateDB()
	exec := vm.NewExecutor(st, nil)
	owner, _ := wallet.Generate(chainID)
	key, _ := wallet.Generate(chainID)
	testutil.Fund(t, st, owner.Address(), 10)
	block := core.NewBlock(chainID, 1, "", owner.Address(), nil)

	self, _ := owner.SetSessionKey(owner.Address(), 0, 0)
	if err := exec.ExecuteTx(block, self); err == nil {
		t.Error("account key cannot be its own session key")
	}
	junk, _ := owner.SetSessionKey("not-a-key", 0, 0)
	if err := exec.ExecuteTx(block, junk); err == nil {
		t.Error("malformed session key should be rejected")
	}

	tx, _ := owner.SetSessionKey(key.Address(), 0, 0)
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatalf("set session key: %v", err)
	}
	if got := resolve(t, st, key.Address()); got != owner.Address() {
		t.Errorf("session key resolves to %s", got)
	}

	third, _ := wallet.Generate(chainID)
	nested, _ := key.SetSessionKey(third.Address(), 0, 0)
	if err := exec.ExecuteTx(block, nested); err == nil {
		t.Error("a session key cannot delegate further")
	}
}
