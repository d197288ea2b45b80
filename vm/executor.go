// Package vm applies transactions to ledger state. Modules register a
// Handler per tx type from init(); the Executor runs them one at a time,
// each inside a state snapshot.
package vm

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/events"
)

var (
	ErrBadNonce        = errors.New("invalid nonce")
	ErrFeeUnaffordable = errors.New("insufficient balance for fee")
)

// Context is passed to every Handler. Events recorded through Emit are
// published only if the transaction succeeds and its block commits.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction
	Log   *zap.Logger

	events []events.Event
}

// Height is the height of the block being built.
func (c *Context) Height() int64 { return c.Block.Header.Height }

// Emit records an event for publication after commit.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.events = append(c.events, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Executor is the single writer of a core.State. All methods are safe for
// concurrent use; transactions are applied strictly one at a time.
type Executor struct {
	mu      sync.Mutex
	state   core.State
	log     *zap.Logger
	pending []events.Event
}

// NewExecutor creates an Executor over state.
func NewExecutor(state core.State, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{state: state, log: logger.Named("vm")}
}

// ExecuteTx verifies and applies one transaction. On error every write the
// transaction made is reverted.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeTx(block, tx)
}

// ExecuteBlock applies every transaction in block. A failing transaction
// rejects the whole block and reverts all of its writes. Used when
// re-executing a block produced elsewhere.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	mark := len(e.pending)
	for _, tx := range block.Transactions {
		if err := e.executeTx(block, tx); err != nil {
			if rerr := e.state.RevertToSnapshot(snap); rerr != nil {
				return fmt.Errorf("tx %s failed: %w (revert: %v)", tx.ID, err, rerr)
			}
			e.pending = e.pending[:mark]
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	return nil
}

// Include applies txs one by one and keeps the ones that succeed. Rejected
// transactions leave no trace in state.
func (e *Executor) Include(block *core.Block, txs []*core.Transaction) (included, rejected []*core.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tx := range txs {
		if err := e.executeTx(block, tx); err != nil {
			e.log.Info("tx rejected",
				zap.String("tx", tx.ID),
				zap.String("type", string(tx.Type)),
				zap.Int64("height", block.Header.Height),
				zap.Error(err))
			rejected = append(rejected, tx)
			continue
		}
		included = append(included, tx)
	}
	return included, rejected
}

// StateRoot returns the root of the state including unflushed writes.
func (e *Executor) StateRoot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ComputeRoot()
}

// Commit flushes the state and returns the events recorded since the last
// Commit or Discard.
func (e *Executor) Commit() ([]events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	evs := e.pending
	e.pending = nil
	return evs, nil
}

// Discard drops unflushed writes and their events.
func (e *Executor) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Discard()
	e.pending = nil
}

func (e *Executor) executeTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if block.Header.ChainID != "" && tx.ChainID != block.Header.ChainID {
		return fmt.Errorf("tx chain %q in block for chain %q", tx.ChainID, block.Header.ChainID)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{State: e.state, Block: block, Tx: tx, Log: e.log.With(zap.String("tx", tx.ID))}
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		if errors.Is(err, core.ErrInvariant) {
			e.log.Error("invariant violation", zap.String("tx", tx.ID), zap.Error(err))
		}
		return err
	}

	ctx.Emit(events.EventTxExecuted, map[string]any{"type": string(tx.Type), "from": tx.From})
	e.pending = append(e.pending, ctx.events...)
	return nil
}

// applyTx deducts the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("%w: expected %d got %d", ErrBadNonce, acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("%w: have %d need %d", ErrFeeUnaffordable, acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
