package network

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/config"
	"github.com/tolelom/arcadechain/core"
)

const (
	syncBatch    = 50
	maxSyncBatch = 200
)

// GetBlocksRequest asks a peer for blocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight int64 `json:"from_height"`
	Limit      int   `json:"limit"`
}

// BlocksResponse carries a batch of blocks in height order.
type BlocksResponse struct {
	Blocks []*core.Block `json:"blocks"`
}

// BlockApplier validates, executes and stores a block produced elsewhere.
// consensus.PoA implements it.
type BlockApplier interface {
	ApplyBlock(block *core.Block) error
}

// Syncer keeps the local chain level with its peers.
type Syncer struct {
	node    *Node
	bc      *core.Blockchain
	applier BlockApplier
	log     *zap.Logger

	mu          sync.Mutex
	genesisRoot string
}

// NewSyncer serves local blocks to peers and applies theirs through applier.
func NewSyncer(node *Node, bc *core.Blockchain, applier BlockApplier, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Syncer{node: node, bc: bc, applier: applier, log: logger.Named("sync")}
	node.height = bc.Height
	node.Handle(MsgHello, s.handleHello)
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	node.Handle(MsgBlock, s.handleBlock)
	return s
}

// ExpectGenesis lets a node without a chain adopt block 0 from a peer. The
// block is accepted only if it commits to root, the state root this node
// computed from its own genesis config.
func (s *Syncer) ExpectGenesis(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genesisRoot = root
}

// handleHello fetches blocks from a peer that is ahead of us.
func (s *Syncer) handleHello(peer *Peer, msg Message) {
	var h Hello
	if err := json.Unmarshal(msg.Payload, &h); err != nil {
		return
	}
	if s.bc.Tip() == nil || h.Height > s.bc.Height() {
		s.SyncWithPeer(peer)
	}
}

// SyncWithPeer requests every block above the local tip from peer, starting
// with genesis on an empty chain.
func (s *Syncer) SyncWithPeer(peer *Peer) {
	from := s.bc.Height() + 1
	if s.bc.Tip() == nil {
		from = 0
	}
	if err := s.RequestBlocks(peer, from); err != nil {
		s.log.Warn("request blocks", zap.String("peer", peer.ID), zap.Error(err))
	}
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight int64) error {
	return peer.SendJSON(MsgGetBlocks, GetBlocksRequest{FromHeight: fromHeight, Limit: syncBatch})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > maxSyncBatch {
		req.Limit = syncBatch
	}
	blocks := make([]*core.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+int64(req.Limit); h++ {
		b, err := s.bc.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	if err := peer.SendJSON(MsgBlocks, BlocksResponse{Blocks: blocks}); err != nil {
		s.log.Warn("send blocks", zap.String("peer", peer.ID), zap.Error(err))
	}
}

func (s *Syncer) handleBlocks(peer *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if s.bc.Tip() == nil {
			if err := s.adoptGenesis(b); err != nil {
				s.log.Warn("genesis rejected", zap.String("peer", peer.ID), zap.Error(err))
				return
			}
			continue
		}
		if b.Header.Height <= s.bc.Height() {
			continue
		}
		if !s.apply(peer, b) {
			return
		}
	}
	if len(resp.Blocks) >= syncBatch {
		s.SyncWithPeer(peer)
	}
}

// handleBlock takes a freshly announced block, or catches up first when
// the announcement skips ahead of the local tip.
func (s *Syncer) handleBlock(peer *Peer, msg Message) {
	var b core.Block
	if err := json.Unmarshal(msg.Payload, &b); err != nil {
		return
	}
	if s.bc.Tip() == nil {
		s.SyncWithPeer(peer)
		return
	}
	switch tip := s.bc.Height(); {
	case b.Header.Height <= tip:
	case b.Header.Height == tip+1:
		s.apply(peer, &b)
	default:
		s.SyncWithPeer(peer)
	}
}

func (s *Syncer) apply(peer *Peer, b *core.Block) bool {
	if err := s.applier.ApplyBlock(b); err != nil {
		s.log.Warn("block rejected",
			zap.String("peer", peer.ID),
			zap.Int64("height", b.Header.Height),
			zap.String("hash", b.Hash),
			zap.Error(err))
		return false
	}
	s.log.Debug("block applied", zap.Int64("height", b.Header.Height), zap.Int("txs", len(b.Transactions)))
	return true
}

func (s *Syncer) adoptGenesis(b *core.Block) error {
	s.mu.Lock()
	root := s.genesisRoot
	s.mu.Unlock()
	switch {
	case root == "":
		return fmt.Errorf("no local genesis state")
	case b.Header.Height != 0 || !config.IsGenesisHash(b.Header.PrevHash):
		return fmt.Errorf("block %d is not a genesis block", b.Header.Height)
	case b.Header.ChainID != s.node.chainID:
		return fmt.Errorf("genesis of chain %q", b.Header.ChainID)
	case b.Header.StateRoot != root:
		return fmt.Errorf("genesis state root %s, local %s", b.Header.StateRoot, root)
	case b.ComputeHash() != b.Hash:
		return fmt.Errorf("genesis hash mismatch")
	}
	if err := s.bc.AddBlock(b); err != nil {
		return err
	}
	s.log.Info("genesis adopted", zap.String("hash", b.Hash))
	return nil
}
