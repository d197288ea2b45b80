package core_test

import (
	"errors"
	"testing"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/crypto"
	"github.com/tolelom/arcadechain/internal/testutil"
	"github.com/tolelom/arcadechain/wallet"
)

const chainID = "core-test"

func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate(chainID)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := w.Register("randzu", 10, 0, 0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tx.ID == "" {
		t.Error("tx ID should be set after signing")
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	tx.Fee = 999
	if err := tx.Verify(); err == nil {
		t.Error("tampered tx should fail verification")
	}
}

func TestBlockHash(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	block := core.NewBlock(chainID, 1, "0000", pub.Hex(), nil)
	block.Sign(priv)

	if block.Hash == "" {
		t.Error("hash should be set after signing")
	}
	if block.ComputeHash() != block.Hash {
		t.Error("ComputeHash() does not match stored hash")
	}
	if err := block.Verify(pub); err != nil {
		t.Errorf("Verify: %v", err)
	}
	block.Header.Height = 2
	if err := block.Verify(pub); err == nil {
		t.Error("changed header should fail verification")
	}
}

func TestMempool(t *testing.T) {
	mp := core.NewMempool(chainID)
	w, _ := wallet.Generate(chainID)

	tx, _ := w.Transfer("aa", 1, 0, 0)
	if err := mp.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mp.Size() != 1 {
		t.Errorf("size: got %d want 1", mp.Size())
	}
	if err := mp.Add(tx); !errors.Is(err, core.ErrDuplicateTx) {
		t.Errorf("duplicate: got %v want ErrDuplicateTx", err)
	}
	if got, ok := mp.Get(tx.ID); !ok || got != tx {
		t.Error("Get should return the pooled tx")
	}

	pending := mp.Pending(10)
	if len(pending) != 1 {
		t.Errorf("pending: got %d want 1", len(pending))
	}

	mp.Remove([]string{tx.ID})
	if mp.Size() != 0 {
		t.Error("pool should be empty after remove")
	}
}

func TestMempoolRejectsForeignChain(t *testing.T) {
	mp := core.NewMempool(chainID)
	w, _ := wallet.Generate("other-chain")
	tx, _ := w.Transfer("aa", 1, 0, 0)
	if err := mp.Add(tx); !errors.Is(err, core.ErrWrongChainID) {
		t.Errorf("got %v want ErrWrongChainID", err)
	}
}

func TestMempoolRejectsBadSignature(t *testing.T) {
	mp := core.NewMempool(chainID)
	w, _ := wallet.Generate(chainID)
	tx, _ := w.Transfer("aa", 1, 0, 0)
	other, _ := wallet.Generate(chainID)
	tx.Signature = other.PrivKey().Sign([]byte(tx.ID))
	if err := mp.Add(tx); err == nil {
		t.Error("tampered signature should be rejected")
	}
}

func TestMempoolPendingKeepsSenderNonceOrder(t *testing.T) {
	mp := core.NewMempool(chainID)
	alice, _ := wallet.Generate(chainID)
	bob, _ := wallet.Generate(chainID)

	a1, _ := alice.Transfer("aa", 1, 1, 0)
	b0, _ := bob.Transfer("aa", 1, 0, 0)
	a0, _ := alice.Transfer("aa", 1, 0, 0)
	for _, tx := range []*core.Transaction{a1, b0, a0} {
		if err := mp.Add(tx); err != nil {
			t.Fatal(err)
		}
	}

	got := mp.Pending(10)
	want := []*core.Transaction{a0, b0, a1}
	if len(got) != len(want) {
		t.Fatalf("pending: got %d txs want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("pending[%d]: got %s/%d want %s/%d", i, got[i].From[:8], got[i].Nonce, want[i].From[:8], want[i].Nonce)
		}
	}
	if n := len(mp.Pending(2)); n != 2 {
		t.Errorf("Pending(2) returned %d txs", n)
	}
}

func TestBlockchainLinkage(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	bc := core.NewBlockchain(testutil.NewBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}
	if bc.Tip() != nil || bc.TipHash() != "" {
		t.Fatal("fresh chain should have no tip")
	}

	orphan := core.NewBlock(chainID, 1, "", pub.Hex(), nil)
	orphan.Sign(priv)
	if err := bc.AddBlock(orphan); err == nil {
		t.Error("first block must be genesis")
	}

	genesis := core.NewBlock(chainID, 0, "", pub.Hex(), nil)
	genesis.Sign(priv)
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatalf("genesis: %v", err)
	}

	bad := core.NewBlock(chainID, 1, "feed", pub.Hex(), nil)
	bad.Sign(priv)
	if err := bc.AddBlock(bad); err == nil {
		t.Error("wrong prev_hash should be rejected")
	}
	skip := core.NewBlock(chainID, 2, genesis.Hash, pub.Hex(), nil)
	skip.Sign(priv)
	if err := bc.AddBlock(skip); err == nil {
		t.Error("height gap should be rejected")
	}

	b1 := core.NewBlock(chainID, 1, genesis.Hash, pub.Hex(), nil)
	b1.Sign(priv)
	if err := bc.AddBlock(b1); err != nil {
		t.Fatalf("block 1: %v", err)
	}
	if bc.Height() != 1 || bc.TipHash() != b1.Hash {
		t.Errorf("tip: height %d hash %s", bc.Height(), bc.TipHash())
	}
	got, err := bc.GetBlockByHeight(0)
	if err != nil || got.Hash != genesis.Hash {
		t.Errorf("GetBlockByHeight(0): %v", err)
	}
}

func TestBlockchainInitRestoresTip(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	store := testutil.NewBlockStore()
	bc := core.NewBlockchain(store)
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}
	genesis := core.NewBlock(chainID, 0, "", pub.Hex(), nil)
	genesis.Sign(priv)
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	reopened := core.NewBlockchain(store)
	if err := reopened.Init(); err != nil {
		t.Fatal(err)
	}
	if reopened.TipHash() != genesis.Hash {
		t.Errorf("tip after reopen: got %s want %s", reopened.TipHash(), genesis.Hash)
	}
}

func TestParamsValidateCapacity(t *testing.T) {
	for _, capacity := range []int{0, 1} {
		p := testutil.ArenaParams()
		g := p.Games["2048"]
		g.Capacity = capacity
		p.Games["2048"] = g
		if err := p.Validate(); err == nil {
			t.Errorf("capacity %d accepted", capacity)
		}
	}
	if err := testutil.ArenaParams().Validate(); err != nil {
		t.Errorf("two seats: %v", err)
	}
}

func TestPlayerRecordMatch(t *testing.T) {
	p := &core.Player{Address: "a"}
	p.RecordMatch("2048", 36)
	p.RecordMatch("2048", 12)
	p.RecordMatch("randzu", 0)
	if got := p.Stats["2048"]; got != (core.GameStats{Played: 2, BestScore: 36}) {
		t.Errorf("2048 stats = %+v", got)
	}
	if got := p.Stats["randzu"]; got.Played != 1 {
		t.Errorf("randzu stats = %+v", got)
	}
}
