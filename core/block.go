package core

import (
	"fmt"
	"time"

	"github.com/tolelom/arcadechain/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	ChainID   string `json:"chain_id"`
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"`
	TxRoot    string `json:"tx_root"`
	Timestamp int64  `json:"timestamp"`
	Proposer  string `json:"proposer"`
}

// Block is an ordered batch of transactions with a signed header. Height is
// the logical clock for match activity and timeouts.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the digest of the header.
func (b *Block) ComputeHash() string {
	h, err := crypto.HashJSON(b.Header)
	if err != nil {
		return ""
	}
	return h
}

// Sign seals the header and signs it with the proposer's key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = priv.Sign([]byte(b.Hash))
}

// Verify checks the hash, the tx root and the proposer signature.
func (b *Block) Verify(pub crypto.PublicKey) error {
	if h := b.ComputeHash(); h != b.Hash {
		return fmt.Errorf("block hash mismatch: header %s, stored %s", h, b.Hash)
	}
	if root := ComputeTxRoot(b.Transactions); root != b.Header.TxRoot {
		return fmt.Errorf("tx root mismatch at height %d", b.Header.Height)
	}
	return pub.Verify([]byte(b.Hash), b.Signature)
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, tx.ID...)
	}
	return crypto.Hash(ids)
}

// NewBlock creates an unsigned block. StateRoot is filled in after execution.
func NewBlock(chainID string, height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			ChainID:   chainID,
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
