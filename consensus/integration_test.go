package consensus_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tolelom/arcadechain/config"
	"github.com/tolelom/arcadechain/consensus"
	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/game/randzu"
	"github.com/tolelom/arcadechain/indexer"
	"github.com/tolelom/arcadechain/metrics"
	"github.com/tolelom/arcadechain/rpc"
	"github.com/tolelom/arcadechain/storage"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/wallet"

	_ "github.com/tolelom/arcadechain/vm/modules/arena"
	_ "github.com/tolelom/arcadechain/vm/modules/economy"
	_ "github.com/tolelom/arcadechain/vm/modules/session"
)

// startTestNode runs a LevelDB-backed validator with its RPC server and
// returns a client for it.
func startTestNode(t *testing.T, cfg *config.Config, validator *wallet.Wallet) *rpc.Client {
	t.Helper()
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "chain"))
	if err != nil {
		t.Fatal(err)
	}
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}
	genesis, err := config.CreateGenesisBlock(cfg, state, validator.PrivKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	emitter := events.NewEmitter(nil)
	idx := indexer.New(db, emitter, nil)
	m := metrics.New()
	m.Attach(emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	poa := consensus.New(cfg, bc, mempool, vm.NewExecutor(state, nil), emitter, validator.PrivKey(), nil)

	server := rpc.NewServer(rpc.ServerConfig{
		Addr:    "127.0.0.1:0",
		Metrics: m.Handler(),
		Stream:  rpc.NewStream(emitter, nil),
	}, rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID))
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poa.Run(ctx, cfg.BlockInterval())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = server.Stop()
		_ = db.Close()
	})
	return rpc.NewClient(fmt.Sprintf("http://%s/", server.Addr()), "")
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type account struct {
	w     *wallet.Wallet
	nonce uint64
}

func (a *account) send(t *testing.T, c *rpc.Client, tx *core.Transaction, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SendTx(context.Background(), tx); err != nil {
		t.Fatalf("sendTx %s: %v", tx.Type, err)
	}
	a.nonce++
}

func TestRandzuMatchOverRPC(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		t.Skip("SKIP_INTEGRATION set")
	}
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.BlockIntervalMs = 50
	validator, _ := wallet.Generate(cfg.Genesis.ChainID)
	cfg.Validators = []string{validator.Address()}
	alice := &account{w: mustWallet(t, cfg.Genesis.ChainID)}
	bob := &account{w: mustWallet(t, cfg.Genesis.ChainID)}
	cfg.Genesis.Alloc[alice.w.Address()] = 1000
	cfg.Genesis.Alloc[bob.w.Address()] = 1000

	c := startTestNode(t, cfg, validator)

	tx, err := alice.w.Register(randzu.GameID, 10, alice.nonce, 0)
	alice.send(t, c, tx, err)
	eventually(t, "alice queued", func() bool {
		l, err := c.WaitingLobby(ctx, randzu.GameID, 10)
		return err == nil && len(l.Players) == 1
	})
	tx, err = bob.w.Register(randzu.GameID, 10, bob.nonce, 0)
	bob.send(t, c, tx, err)

	var matchID uint64
	eventually(t, "match start", func() bool {
		p, err := c.Player(ctx, alice.w.Address())
		if err != nil || p.ActiveMatch == 0 {
			return false
		}
		matchID = p.ActiveMatch
		return true
	})

	moves := uint64(0)
	play := func(a *account, mv randzu.Move) {
		t.Helper()
		tx, err := a.w.ApplyMove(matchID, mv, a.nonce, 0)
		a.send(t, c, tx, err)
		moves++
		eventually(t, fmt.Sprintf("move %d", moves), func() bool {
			m, err := c.Match(ctx, matchID)
			return err == nil && m.Moves == moves
		})
	}
	for x := 0; x < randzu.LineToWin-1; x++ {
		play(alice, randzu.Move{X: x, Y: 0})
		play(bob, randzu.Move{X: x, Y: 1})
	}
	play(alice, randzu.Move{X: 4, Y: 0, Win: &randzu.Witness{X: 0, Y: 0, DX: 1}})

	m, err := c.Match(ctx, matchID)
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != core.MatchClosed || m.Winner != alice.w.Address() {
		t.Fatalf("match not won by alice: status %s winner %s", m.Status, m.Winner)
	}
	for addr, want := range map[string]uint64{
		alice.w.Address():              1008,
		bob.w.Address():                990,
		cfg.Genesis.Arena.ProtocolPool: 2,
	} {
		bal, err := c.Balance(ctx, addr)
		if err != nil {
			t.Fatal(err)
		}
		if bal.Balance != want {
			t.Errorf("balance of %s: got %d want %d", addr[:8], bal.Balance, want)
		}
	}
	e, err := c.Escrow(ctx, matchID)
	if err != nil || !e.Settled || e.Paid+e.Swept != e.Staked {
		t.Errorf("escrow not settled: %+v (%v)", e, err)
	}

	eventually(t, "index", func() bool {
		ids, err := c.MatchesByPlayer(ctx, bob.w.Address())
		return err == nil && len(ids) == 1 && ids[0] == matchID
	})
}

func mustWallet(t *testing.T, chainID string) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Generate(chainID)
	if err != nil {
		t.Fatal(err)
	}
	return w
}
