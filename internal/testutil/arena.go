package testutil

import (
	"testing"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/storage"
)

// ProtocolPool is the pool account used by ArenaParams.
const ProtocolPool = "protocol-pool"

// ArenaParams returns two-seat parameters for every built-in game with fee
// tiers 10 and 100, a 5-block timeout, 90% to the winner and 95% split on
// a draw.
func ArenaParams() *core.Params {
	game := core.GameParams{
		Capacity:      2,
		FeeTiers:      []uint64{10, 100},
		TimeoutBlocks: 5,
		Shares:        core.ShareTable{WinnerBps: 9000, DrawBps: 9500},
	}
	return &core.Params{
		ProtocolPool: ProtocolPool,
		Games: map[string]core.GameParams{
			"2048":     game,
			"arkanoid": game,
			"randzu":   game,
		},
	}
}

// NewArenaState returns a fresh StateDB holding ArenaParams.
func NewArenaState(t testing.TB) *storage.StateDB {
	t.Helper()
	st := NewStateDB()
	if err := st.SetParams(ArenaParams()); err != nil {
		t.Fatalf("set params: %v", err)
	}
	return st
}

// Fund credits amount to addr.
func Fund(t testing.TB, st core.State, addr string, amount uint64) {
	t.Helper()
	acc, err := st.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.Balance += amount
	if err := st.SetAccount(acc); err != nil {
		t.Fatalf("set account: %v", err)
	}
}

// Balance reads the balance of addr.
func Balance(t testing.TB, st core.State, addr string) uint64 {
	t.Helper()
	acc, err := st.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}
