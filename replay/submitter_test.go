package replay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/game/arkanoid"
	"github.com/tolelom/arcadechain/rpc"
	"github.com/tolelom/arcadechain/wallet"
)

const testChain = "replay-test"

// fakeNode answers the three calls RPCSubmitter makes. Accepted moves are
// applied with the real engine and the opponent passes straight back.
type fakeNode struct {
	mu     sync.Mutex
	match  core.Match
	nonce  uint64
	reject string
	txs    []core.Transaction
}

func newFakeNode(owner string) *fakeNode {
	states, _ := arkanoid.Engine{}.NewStates(2)
	return &fakeNode{
		nonce: 5,
		match: core.Match{
			ID:          9,
			GameID:      arkanoid.GameID,
			Players:     []string{owner, "opponent"},
			CurrentTurn: owner,
			States:      states,
			Scores:      make([]uint64, 2),
			Status:      core.MatchActive,
		},
	}
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := rpc.Response{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "getMatch":
		resp.Result = n.match
	case "getBalance":
		resp.Result = rpc.BalanceResult{Nonce: n.nonce}
	case "sendTx":
		var tx core.Transaction
		_ = json.Unmarshal(req.Params, &tx)
		if n.reject != "" {
			resp.Error = &rpc.Error{Code: rpc.CodeTxRejected, Message: n.reject}
			break
		}
		n.txs = append(n.txs, tx)
		var p core.ApplyMovePayload
		_ = json.Unmarshal(tx.Payload, &p)
		tr, err := arkanoid.Engine{}.Apply(n.match.States, 0, p.Move)
		if err != nil {
			resp.Error = &rpc.Error{Code: rpc.CodeTxRejected, Message: err.Error()}
			break
		}
		n.match.States = tr.States
		n.match.Moves += 2
		n.nonce++
		resp.Result = rpc.SendTxResult{TxID: tx.Hash()}
	default:
		resp.Error = &rpc.Error{Code: rpc.CodeMethodNotFound, Message: req.Method}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newSubmitter(t *testing.T) (*RPCSubmitter, *fakeNode) {
	t.Helper()
	w, err := wallet.Generate(testChain)
	require.NoError(t, err)
	node := newFakeNode(w.Address())
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	sub := NewRPCSubmitter(rpc.NewClient(srv.URL, ""), w, w.Address(), nil)
	sub.SetPollInterval(time.Millisecond)
	return sub, node
}

func idleChunk() arkanoid.Chunk {
	return arkanoid.Chunk{Ticks: make([]arkanoid.Tick, arkanoid.ChunkLength)}
}

func TestRPCSubmitterReturnsCommittedBoard(t *testing.T) {
	sub, node := newSubmitter(t)
	ctx := context.Background()

	want := arkanoid.NewState()
	for i := 0; i < arkanoid.ChunkLength; i++ {
		want.ProcessTick(arkanoid.Tick{})
	}

	blob, err := sub.Submit(ctx, 9, idleChunk())
	require.NoError(t, err)
	assert.Equal(t, want.Encode(), blob)

	_, err = sub.Submit(ctx, 9, idleChunk())
	require.NoError(t, err)

	require.Len(t, node.txs, 2)
	assert.Equal(t, uint64(5), node.txs[0].Nonce)
	assert.Equal(t, uint64(6), node.txs[1].Nonce)
	assert.Equal(t, core.TxApplyMove, node.txs[0].Type)
	assert.NoError(t, node.txs[1].Verify())
}

func TestRPCSubmitterStopsOnClosedMatch(t *testing.T) {
	sub, node := newSubmitter(t)
	// a closed match keeps its last turn holder
	node.match.Status = core.MatchClosed

	_, err := sub.Submit(context.Background(), 9, idleChunk())
	assert.ErrorIs(t, err, ErrMatchClosed)
	assert.Empty(t, node.txs)
}

func TestRPCSubmitterRejectedTxRefetchesNonce(t *testing.T) {
	sub, node := newSubmitter(t)
	ctx := context.Background()
	node.reject = "nonce too low"

	_, err := sub.Submit(ctx, 9, idleChunk())
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeTxRejected, rpcErr.Code)

	node.mu.Lock()
	node.reject = ""
	node.nonce = 11
	node.mu.Unlock()

	_, err = sub.Submit(ctx, 9, idleChunk())
	require.NoError(t, err)
	require.Len(t, node.txs, 1)
	assert.Equal(t, uint64(11), node.txs[0].Nonce)
}

func TestRPCSubmitterWaitsForTurn(t *testing.T) {
	sub, node := newSubmitter(t)
	owner := node.match.CurrentTurn
	node.match.CurrentTurn = "opponent"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sub.Submit(ctx, 9, idleChunk())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, node.txs)

	node.mu.Lock()
	node.match.CurrentTurn = owner
	node.mu.Unlock()
	_, err = sub.Submit(context.Background(), 9, idleChunk())
	assert.NoError(t, err)
}
