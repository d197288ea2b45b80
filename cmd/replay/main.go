// Command replay plays the physics game against a node: the board runs
// locally at frame rate while every chunk of ticks is sent as a move.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/config"
	"github.com/tolelom/arcadechain/game/arkanoid"
	"github.com/tolelom/arcadechain/internal/logging"
	"github.com/tolelom/arcadechain/replay"
	"github.com/tolelom/arcadechain/rpc"
	"github.com/tolelom/arcadechain/wallet"
)

func main() {
	url := flag.String("rpc", "http://127.0.0.1:8545/", "node RPC endpoint")
	token := flag.String("token", "", "RPC bearer token")
	keyPath := flag.String("key", "session.key", "keystore of the signing key")
	owner := flag.String("owner", "", "account seated in the match (defaults to the signing key)")
	chainID := flag.String("chain", config.DefaultConfig().Genesis.ChainID, "chain id")
	matchID := flag.Uint64("match", 0, "match id")
	fps := flag.Int("fps", 30, "local frames per second")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *matchID == 0 || *fps <= 0 {
		flag.Usage()
		os.Exit(2)
	}
	priv, err := wallet.LoadKey(*keyPath, os.Getenv("ARCADE_PASSWORD"))
	if err != nil {
		logger.Fatal("load key", zap.Error(err))
	}
	signer := wallet.New(*chainID, priv)
	if *owner == "" {
		*owner = signer.Address()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := rpc.NewClient(*url, *token)
	start, err := board(ctx, client, *matchID, *owner)
	if err != nil {
		logger.Fatal("fetch board", zap.Uint64("match", *matchID), zap.Error(err))
	}
	sim := replay.NewFrom(*matchID, *start, replay.NewRPCSubmitter(client, signer, *owner, logger))

	err = sim.Run(ctx, time.Second/time.Duration(*fps), autopilot(sim), func(s arkanoid.State) {
		logger.Debug("frame",
			zap.Uint32("tick", s.Ticks),
			zap.Int64("ball_x", s.Ball.X),
			zap.Int64("ball_y", s.Ball.Y),
			zap.Int64("paddle", s.PaddleX),
			zap.Uint64("score", s.Score))
	})
	final := sim.State()
	logger.Info("game ended",
		zap.Stringer("status", final.Status),
		zap.Uint64("score", final.Score),
		zap.Int("chunks", sim.Chunks()),
		zap.Int("resyncs", sim.Divergences()),
		zap.Error(err))
}

func board(ctx context.Context, client *rpc.Client, matchID uint64, owner string) (*arkanoid.State, error) {
	m, err := client.Match(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.GameID != arkanoid.GameID {
		return nil, fmt.Errorf("match %d plays %s", matchID, m.GameID)
	}
	seat := m.Seat(owner)
	if seat < 0 {
		return nil, fmt.Errorf("%s is not seated in match %d", owner, matchID)
	}
	res, err := client.Board(ctx, matchID, seat)
	if err != nil {
		return nil, err
	}
	return arkanoid.Decode(res.Blob)
}

// autopilot steers the paddle under the ball and kicks toward the centre.
func autopilot(sim *replay.Simulator) replay.Input {
	return func() (int64, int64) {
		s := sim.State()
		action := s.Ball.X + s.Ball.VX - s.PaddleX
		var momentum int64
		switch {
		case s.Ball.X < arkanoid.FieldWidth/3:
			momentum = arkanoid.MaxMomentum / 2
		case s.Ball.X > 2*arkanoid.FieldWidth/3:
			momentum = -arkanoid.MaxMomentum / 2
		}
		return action, momentum
	}
}
