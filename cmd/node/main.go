// Command node starts an arcade chain validator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/config"
	"github.com/tolelom/arcadechain/consensus"
	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/indexer"
	"github.com/tolelom/arcadechain/internal/logging"
	"github.com/tolelom/arcadechain/metrics"
	"github.com/tolelom/arcadechain/network"
	"github.com/tolelom/arcadechain/rpc"
	"github.com/tolelom/arcadechain/storage"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/wallet"

	// handlers register themselves in init
	_ "github.com/tolelom/arcadechain/vm/modules/arena"
	_ "github.com/tolelom/arcadechain/vm/modules/economy"
	_ "github.com/tolelom/arcadechain/vm/modules/session"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// password comes from the environment; flags show up in ps
	password := os.Getenv("ARCADE_PASSWORD")
	if password == "" {
		logger.Warn("ARCADE_PASSWORD not set, keystore uses an empty password")
	}

	if *genKey {
		w, err := wallet.Generate(cfg.Genesis.ChainID)
		if err != nil {
			logger.Fatal("generate key", zap.Error(err))
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			logger.Fatal("save key", zap.Error(err))
		}
		fmt.Printf("Generated key. Validator address: %s\n", w.Address())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	if err := run(cfg, *keyPath, password, logger); err != nil {
		logger.Fatal("node stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, keyPath, password string, logger *zap.Logger) error {
	privKey, err := wallet.LoadKey(keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	if len(cfg.Validators) == 0 {
		logger.Warn("no validators configured, running as the only proposer")
		cfg.Validators = []string{privKey.Public().Hex()}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// blocks, state and indexes share one DB under different key prefixes
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}
	self := privKey.Public().Hex()
	// a node that did not propose genesis takes block 0 from its seeds
	follower := self != cfg.Validators[0] && len(cfg.SeedPeers) > 0 && cfg.P2PPort > 0
	var genesisRoot string
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if follower {
			genesisRoot = genesis.Header.StateRoot
			logger.Info("waiting for genesis from peers", zap.String("state_root", genesisRoot))
		} else {
			if err := bc.AddBlock(genesis); err != nil {
				return fmt.Errorf("add genesis: %w", err)
			}
			logger.Info("genesis committed", zap.String("hash", genesis.Hash), zap.String("chain", cfg.Genesis.ChainID))
		}
	}

	emitter := events.NewEmitter(logger)
	idx := indexer.New(db, emitter, logger)
	m := metrics.New()
	m.Attach(emitter)
	stream := rpc.NewStream(emitter, logger)

	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(state, logger)
	poa := consensus.New(cfg, bc, mempool, exec, emitter, privKey, logger)
	handler := rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID)

	if cfg.P2PPort > 0 {
		tlsCfg, err := cfg.TLS.Load()
		if err != nil {
			return err
		}
		node := network.NewNode(cfg.NodeID, cfg.Genesis.ChainID, fmt.Sprintf(":%d", cfg.P2PPort), mempool, tlsCfg, logger)
		syncer := network.NewSyncer(node, bc, poa, logger)
		if genesisRoot != "" {
			syncer.ExpectGenesis(genesisRoot)
		}
		emitter.Subscribe(events.EventBlockCommit, func(ev events.Event) {
			b, err := bc.GetBlockByHeight(ev.BlockHeight)
			if err == nil && b.Header.Proposer == self {
				node.BroadcastBlock(b)
			}
		})
		handler.OnAccepted(node.BroadcastTx)

		if err := node.Start(); err != nil {
			return fmt.Errorf("p2p start: %w", err)
		}
		defer node.Stop()
		logger.Info("p2p listening", zap.String("addr", node.Addr()), zap.Bool("tls", tlsCfg != nil))
		for _, sp := range cfg.SeedPeers {
			peer, err := node.AddPeer(sp.ID, sp.Addr)
			if err != nil {
				logger.Warn("seed peer", zap.String("peer", sp.ID), zap.String("addr", sp.Addr), zap.Error(err))
				continue
			}
			syncer.SyncWithPeer(peer)
		}
	}

	server := rpc.NewServer(rpc.ServerConfig{
		Addr:      fmt.Sprintf(":%d", cfg.RPCPort),
		AuthToken: cfg.RPCAuthToken,
		Metrics:   m.Handler(),
		Stream:    stream,
		Logger:    logger,
	}, handler)
	if err := server.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			logger.Warn("rpc stop", zap.Error(err))
		}
	}()
	logger.Info("rpc listening", zap.String("addr", server.Addr()), zap.Bool("auth", cfg.RPCAuthToken != ""))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(ctx, cfg.BlockInterval())
	}()
	logger.Info("consensus running",
		zap.String("validator", self),
		zap.Bool("proposer", poa.IsProposer()),
		zap.Int64("height", bc.Height()),
		zap.Duration("interval", cfg.BlockInterval()))

	<-ctx.Done()
	logger.Info("shutting down")
	// no block may be written after the DB closes
	wg.Wait()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}
