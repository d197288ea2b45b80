package vm_test

import (
	"errors"
	"testing"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/internal/testutil"
	"github.com/tolelom/arcadechain/storage"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/wallet"

	_ "github.com/tolelom/arcadechain/vm/modules/economy"
)

const chainID = "vm-test"

func setup(t *testing.T) (*storage.StateDB, *vm.Executor, *wallet.Wallet, *core.Block) {
	t.Helper()
	state := testutil.NewStateDB()
	exec := vm.NewExecutor(state, nil)
	w, err := wallet.Generate(chainID)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Fund(t, state, w.Address(), 1000)
	return state, exec, w, core.NewBlock(chainID, 1, "0000", w.Address(), nil)
}

func TestTokenTransfer(t *testing.T) {
	state, exec, sender, block := setup(t)
	receiver, _ := wallet.Generate(chainID)

	tx, err := sender.Transfer(receiver.Address(), 300, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatalf("ExecuteTx: %v", err)
	}

	if got := testutil.Balance(t, state, sender.Address()); got != 695 {
		t.Errorf("sender balance: got %d want 695", got)
	}
	if got := testutil.Balance(t, state, receiver.Address()); got != 300 {
		t.Errorf("receiver balance: got %d want 300", got)
	}
	acc, _ := state.GetAccount(sender.Address())
	if acc.Nonce != 1 {
		t.Errorf("nonce: got %d want 1", acc.Nonce)
	}
}

func TestNonceReplay(t *testing.T) {
	_, exec, w, block := setup(t)

	tx1, _ := w.Transfer("aabb", 1, 0, 0)
	if err := exec.ExecuteTx(block, tx1); err != nil {
		t.Fatalf("first tx: %v", err)
	}
	if err := exec.ExecuteTx(block, tx1); !errors.Is(err, vm.ErrBadNonce) {
		t.Errorf("replay: got %v want ErrBadNonce", err)
	}
}

func TestFailedTxLeavesNoTrace(t *testing.T) {
	state, exec, w, block := setup(t)

	// the fee is affordable, the amount is not
	tx, _ := w.Transfer("aabb", 5000, 0, 10)
	if err := exec.ExecuteTx(block, tx); err == nil {
		t.Fatal("overdraft should fail")
	}
	acc, _ := state.GetAccount(w.Address())
	if acc.Balance != 1000 || acc.Nonce != 0 {
		t.Errorf("account changed by failed tx: %+v", acc)
	}

	tx, _ = w.Transfer("aabb", 1, 0, 2000)
	if err := exec.ExecuteTx(block, tx); !errors.Is(err, vm.ErrFeeUnaffordable) {
		t.Errorf("got %v want ErrFeeUnaffordable", err)
	}
}

func TestForeignChainTxRejected(t *testing.T) {
	state, exec, _, block := setup(t)
	other, _ := wallet.Generate("other-chain")
	testutil.Fund(t, state, other.Address(), 10)

	tx, _ := other.Transfer("aabb", 1, 0, 0)
	if err := exec.ExecuteTx(block, tx); err == nil {
		t.Error("tx for another chain should be rejected")
	}
}

func TestIncludeDropsFailingTxs(t *testing.T) {
	state, exec, w, block := setup(t)

	ok0, _ := w.Transfer("aabb", 100, 0, 0)
	bad, _ := w.Transfer("aabb", 5000, 1, 0)
	ok1, _ := w.Transfer("aabb", 100, 1, 0)

	included, rejected := exec.Include(block, []*core.Transaction{ok0, bad, ok1})
	if len(included) != 2 || included[0] != ok0 || included[1] != ok1 {
		t.Errorf("included: %d txs", len(included))
	}
	if len(rejected) != 1 || rejected[0] != bad {
		t.Errorf("rejected: %d txs", len(rejected))
	}
	if got := testutil.Balance(t, state, "aabb"); got != 200 {
		t.Errorf("recipient: got %d want 200", got)
	}

	evs, err := exec.Commit()
	if err != nil {
		t.Fatal(err)
	}
	var executed, transfers int
	for _, ev := range evs {
		switch ev.Type {
		case events.EventTxExecuted:
			executed++
		case events.EventTokenTransfer:
			transfers++
		}
		if ev.BlockHeight != 1 {
			t.Errorf("event %s at height %d", ev.Type, ev.BlockHeight)
		}
	}
	if executed != 2 || transfers != 2 {
		t.Errorf("events: %d executed, %d transfers", executed, transfers)
	}
}

func TestExecuteBlockIsAllOrNothing(t *testing.T) {
	state, exec, w, _ := setup(t)

	ok0, _ := w.Transfer("aabb", 100, 0, 0)
	bad, _ := w.Transfer("aabb", 5000, 1, 0)
	block := core.NewBlock(chainID, 1, "0000", w.Address(), []*core.Transaction{ok0, bad})

	if err := exec.ExecuteBlock(block); err == nil {
		t.Fatal("block with a failing tx should be rejected")
	}
	if got := testutil.Balance(t, state, w.Address()); got != 1000 {
		t.Errorf("sender: got %d want 1000", got)
	}
	evs, err := exec.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 0 {
		t.Errorf("rejected block left %d events", len(evs))
	}
}

func TestDiscardDropsWritesAndEvents(t *testing.T) {
	state, exec, w, block := setup(t)
	if _, err := exec.Commit(); err != nil {
		t.Fatal(err)
	}
	root := exec.StateRoot()

	tx, _ := w.Transfer("aabb", 100, 0, 0)
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatal(err)
	}
	if exec.StateRoot() == root {
		t.Error("state root should include unflushed writes")
	}

	exec.Discard()
	if exec.StateRoot() != root {
		t.Error("Discard should restore the committed root")
	}
	if got := testutil.Balance(t, state, w.Address()); got != 1000 {
		t.Errorf("balance after discard: got %d want 1000", got)
	}
	evs, _ := exec.Commit()
	if len(evs) != 0 {
		t.Errorf("discarded txs left %d events", len(evs))
	}
}
