package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/game/arkanoid"
	"github.com/tolelom/arcadechain/rpc"
	"github.com/tolelom/arcadechain/wallet"
)

var ErrMatchClosed = errors.New("match closed before the chunk was applied")

// RPCSubmitter signs each chunk as an apply_move transaction, sends it to a
// node and waits for the committed result.
type RPCSubmitter struct {
	client *rpc.Client
	signer *wallet.Wallet
	owner  string
	poll   time.Duration
	log    *zap.Logger

	nonce    uint64
	nonceSet bool
}

// NewRPCSubmitter submits as signer (usually a session key) on behalf of
// owner, the account seated in the match.
func NewRPCSubmitter(client *rpc.Client, signer *wallet.Wallet, owner string, logger *zap.Logger) *RPCSubmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCSubmitter{client: client, signer: signer, owner: owner, poll: 250 * time.Millisecond, log: logger.Named("replay")}
}

// SetPollInterval changes how often the node is polled.
func (r *RPCSubmitter) SetPollInterval(d time.Duration) { r.poll = d }

// Submit implements Submitter. It waits for owner's turn, sends the chunk
// and returns owner's board once the move count has advanced.
func (r *RPCSubmitter) Submit(ctx context.Context, matchID uint64, chunk arkanoid.Chunk) ([]byte, error) {
	before, err := r.await(ctx, matchID, func(m *core.Match) bool {
		return m.Status == core.MatchActive && m.CurrentTurn == r.owner
	})
	if err != nil {
		return nil, err
	}
	seat := before.Seat(r.owner)
	if seat < 0 {
		return nil, fmt.Errorf("%s is not seated in match %d", r.owner, matchID)
	}
	if !r.nonceSet {
		bal, err := r.client.Balance(ctx, r.signer.Address())
		if err != nil {
			return nil, err
		}
		r.nonce, r.nonceSet = bal.Nonce, true
	}

	tx, err := r.signer.ApplyMove(matchID, chunk, r.nonce, 0)
	if err != nil {
		return nil, err
	}
	if _, err := r.client.SendTx(ctx, tx); err != nil {
		r.nonceSet = false
		return nil, err
	}
	r.log.Debug("chunk sent", zap.Uint64("match", matchID), zap.String("tx", tx.ID), zap.Uint64("nonce", r.nonce))

	// only the turn holder can move, so the next move is ours
	after, err := r.await(ctx, matchID, func(m *core.Match) bool { return m.Moves > before.Moves })
	if err != nil {
		// the tx may still land; refetch the nonce next time
		r.nonceSet = false
		return nil, err
	}
	r.nonce++
	return after.States[seat], nil
}

// await polls the match until ready reports true. A match that closes
// first ends the wait with ErrMatchClosed, unless ready accepts it.
func (r *RPCSubmitter) await(ctx context.Context, matchID uint64, ready func(*core.Match) bool) (*core.Match, error) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		m, err := r.client.Match(ctx, matchID)
		switch {
		case err != nil:
			var rpcErr *rpc.Error
			if errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeNotFound {
				return nil, err
			}
			r.log.Debug("poll match", zap.Uint64("match", matchID), zap.Error(err))
		case ready(m):
			return m, nil
		case m.Status != core.MatchActive:
			return nil, fmt.Errorf("%w: match %d is %s", ErrMatchClosed, matchID, m.Status)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
