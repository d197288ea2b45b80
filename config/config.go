// Package config loads node configuration and builds the genesis block.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/escrow"
	"github.com/tolelom/arcadechain/game"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex → initial balance
	Arena   *core.Params      `json:"arena"`
}

// SeedPeer is a node dialled at startup.
type SeedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// Config holds all node configuration.
type Config struct {
	NodeID          string        `json:"node_id"`
	DataDir         string        `json:"data_dir"`
	RPCPort         int           `json:"rpc_port"`
	RPCAuthToken    string        `json:"rpc_auth_token,omitempty"`
	P2PPort         int           `json:"p2p_port"` // 0 → p2p disabled
	SeedPeers       []SeedPeer    `json:"seed_peers,omitempty"`
	TLS             *TLSConfig    `json:"tls,omitempty"`
	MaxBlockTxs     int           `json:"max_block_txs"` // max transactions per block; 0 → 500
	BlockIntervalMs int64         `json:"block_interval_ms"`
	Validators      []string      `json:"validators"` // authorised proposer pubkey hexes
	LogLevel        string        `json:"log_level"`
	LogDevelopment  bool          `json:"log_development"`
	Genesis         GenesisConfig `json:"genesis"`
}

// DefaultArena returns the stock arena: every built-in game with two seats,
// 90% of the pot to the winner and 95% split on a draw.
func DefaultArena() *core.Params {
	shares := core.ShareTable{WinnerBps: 9000, DrawBps: 9500}
	return &core.Params{
		ProtocolPool: "arcade-protocol-pool",
		Games: map[string]core.GameParams{
			"2048":     {Capacity: 2, FeeTiers: []uint64{10, 100, 1000}, TimeoutBlocks: 30, Shares: shares},
			"arkanoid": {Capacity: 2, FeeTiers: []uint64{10, 100, 1000}, TimeoutBlocks: 15, Shares: shares},
			"randzu":   {Capacity: 2, FeeTiers: []uint64{10, 100, 1000}, TimeoutBlocks: 30, Shares: shares},
		},
	}
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "node0",
		DataDir:         "./data",
		RPCPort:         8545,
		MaxBlockTxs:     500,
		BlockIntervalMs: 2000,
		LogLevel:        "info",
		Genesis: GenesisConfig{
			ChainID: "arcadechain-dev",
			Alloc:   map[string]uint64{},
			Arena:   DefaultArena(),
		},
	}
}

// BlockInterval is the proposer tick.
func (c *Config) BlockInterval() time.Duration {
	if c.BlockIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.BlockIntervalMs) * time.Millisecond
}

// Validate checks the genesis section. Every configured game must have a
// registered engine, so callers import the engine packages first.
func (c *Config) Validate() error {
	if c.Genesis.ChainID == "" {
		return errors.New("genesis.chain_id is required")
	}
	arena := c.Genesis.Arena
	if arena == nil {
		return errors.New("genesis.arena is required")
	}
	if err := arena.Validate(); err != nil {
		return fmt.Errorf("genesis.arena: %w", err)
	}
	for id, g := range arena.Games {
		eng, ok := game.Lookup(id)
		if !ok {
			return fmt.Errorf("genesis.arena: game %q has no engine", id)
		}
		if err := game.CheckSeats(eng, g.Capacity); err != nil {
			return fmt.Errorf("genesis.arena: %w", err)
		}
		if err := escrow.Validate(g.Shares); err != nil {
			return fmt.Errorf("genesis.arena: game %q: %w", id, err)
		}
	}
	for _, v := range c.Validators {
		if len(v) != 64 {
			return fmt.Errorf("validator %q is not a hex ed25519 public key", v)
		}
	}
	return nil
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
