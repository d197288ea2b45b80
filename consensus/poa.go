// Package consensus implements Proof-of-Authority block production.
// Validators propose blocks in round-robin order. Each block is signed by
// the proposer; other nodes verify the signature before accepting the block.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/config"
	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/crypto"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/vm"
)

var (
	ErrNotProposer   = errors.New("not the proposer for this round")
	ErrNoGenesis     = errors.New("chain has no genesis block")
	ErrStateMismatch = errors.New("state root mismatch")
)

const defaultMaxBlockTxs = 500

// PoA is the Proof-of-Authority consensus engine.
type PoA struct {
	cfg     *config.Config
	bc      *core.Blockchain
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	log     *zap.Logger

	// mu orders local production against blocks applied from peers
	mu sync.Mutex
}

// New creates a PoA engine for the local validator identified by privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	logger *zap.Logger,
) *PoA {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoA{
		cfg:     cfg,
		bc:      bc,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
		log:     logger.Named("consensus"),
	}
}

// IsProposer reports whether this node should propose the next block.
func (p *PoA) IsProposer() bool {
	return p.proposerFor(p.bc.Height()+1) == p.pubKey.Hex()
}

func (p *PoA) proposerFor(height int64) string {
	if len(p.cfg.Validators) == 0 {
		return ""
	}
	return p.cfg.Validators[int(height)%len(p.cfg.Validators)]
}

// ProduceBlock drains the mempool into the next block. Each transaction is
// applied on its own; failures are logged, dropped from the pool and left
// out of the block.
func (p *PoA) ProduceBlock() (*core.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.IsProposer() {
		return nil, ErrNotProposer
	}
	tip := p.bc.Tip()
	if tip == nil {
		return nil, ErrNoGenesis
	}

	limit := p.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = defaultMaxBlockTxs
	}
	pending := p.mempool.Pending(limit)

	block := core.NewBlock(p.cfg.Genesis.ChainID, tip.Header.Height+1, tip.Hash, p.pubKey.Hex(), nil)
	included, rejected := p.exec.Include(block, pending)
	block.Transactions = included
	block.Header.TxRoot = core.ComputeTxRoot(included)

	// root comes from the write buffer so nothing is flushed if AddBlock fails
	block.Header.StateRoot = p.exec.StateRoot()
	block.Sign(p.privKey)

	if err := p.bc.AddBlock(block); err != nil {
		p.exec.Discard()
		return nil, fmt.Errorf("add block: %w", err)
	}
	p.commit(block)

	ids := make([]string, 0, len(included)+len(rejected))
	for _, tx := range included {
		ids = append(ids, tx.ID)
	}
	for _, tx := range rejected {
		ids = append(ids, tx.ID)
	}
	p.mempool.Remove(ids)

	p.log.Info("block produced",
		zap.Int64("height", block.Header.Height),
		zap.String("hash", block.Hash),
		zap.Int("txs", len(included)),
		zap.Int("rejected", len(rejected)))
	return block, nil
}

// ApplyBlock validates and re-executes a block produced by another
// validator. Any failing transaction or a state root that differs from the
// header rejects the block and leaves state untouched.
func (p *PoA) ApplyBlock(block *core.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ValidateBlock(block); err != nil {
		return err
	}
	if err := p.exec.ExecuteBlock(block); err != nil {
		return fmt.Errorf("execute block %d: %w", block.Header.Height, err)
	}
	if root := p.exec.StateRoot(); root != block.Header.StateRoot {
		p.exec.Discard()
		return fmt.Errorf("%w at height %d: got %s want %s", ErrStateMismatch, block.Header.Height, root, block.Header.StateRoot)
	}
	if err := p.bc.AddBlock(block); err != nil {
		p.exec.Discard()
		return fmt.Errorf("add block: %w", err)
	}
	p.commit(block)

	ids := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.ID
	}
	p.mempool.Remove(ids)
	return nil
}

// commit flushes state for a stored block and publishes its events. A block
// that is stored but whose state cannot be flushed leaves the node
// inconsistent, so that is fatal.
func (p *PoA) commit(block *core.Block) {
	evs, err := p.exec.Commit()
	if err != nil {
		p.log.Fatal("block stored but state commit failed",
			zap.Int64("height", block.Header.Height), zap.Error(err))
	}
	p.emitter.EmitAll(evs)
	p.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
	})
}

// ValidateBlock checks chain id, proposer, signature and linkage.
func (p *PoA) ValidateBlock(block *core.Block) error {
	if len(p.cfg.Validators) == 0 {
		return errors.New("no validators configured")
	}
	if block.Header.ChainID != p.cfg.Genesis.ChainID {
		return fmt.Errorf("chain id mismatch: got %q want %q", block.Header.ChainID, p.cfg.Genesis.ChainID)
	}
	expected := p.proposerFor(block.Header.Height)
	if block.Header.Proposer != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, expected)
	}

	pub, err := crypto.PubKeyFromHex(block.Header.Proposer)
	if err != nil {
		return fmt.Errorf("invalid proposer pubkey: %w", err)
	}
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}

	tip := p.bc.Tip()
	if tip == nil {
		return ErrNoGenesis
	}
	if block.Header.PrevHash != tip.Hash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
	}
	if block.Header.Height != tip.Header.Height+1 {
		return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, tip.Header.Height+1)
	}
	return nil
}

// Run produces a block every interval while this node is the proposer. It
// returns when ctx is cancelled.
func (p *PoA) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.IsProposer() {
				continue
			}
			if _, err := p.ProduceBlock(); err != nil {
				p.log.Warn("produce block", zap.Error(err))
			}
		}
	}
}
