// Package replay runs a local, non-authoritative copy of the physics game for
// immediate feedback. Ticks are buffered into fixed-size chunks, each chunk
// is submitted once, and the local board is then overwritten with the
// committed result.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tolelom/arcadechain/game/arkanoid"
)

var ErrGameOver = errors.New("game over")

// Submitter sends one full chunk for matchID and returns the committed
// state blob of the submitting player's board.
type Submitter interface {
	Submit(ctx context.Context, matchID uint64, chunk arkanoid.Chunk) ([]byte, error)
}

// Simulator is safe for concurrent use; Tick calls are serialized.
type Simulator struct {
	matchID uint64
	sub     Submitter

	mu          sync.Mutex
	state       arkanoid.State
	buf         []arkanoid.Tick
	chunks      int
	divergences int
}

// New starts a simulator from the initial board.
func New(matchID uint64, sub Submitter) *Simulator {
	return NewFrom(matchID, arkanoid.NewState(), sub)
}

// NewFrom starts a simulator from a known board, e.g. after reconnecting.
func NewFrom(matchID uint64, state arkanoid.State, sub Submitter) *Simulator {
	return &Simulator{matchID: matchID, sub: sub, state: state, buf: make([]arkanoid.Tick, 0, arkanoid.ChunkLength)}
}

// State returns a copy of the local board.
func (s *Simulator) State() arkanoid.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Chunks is the number of chunks submitted so far.
func (s *Simulator) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Divergences counts resyncs that changed the local board.
func (s *Simulator) Divergences() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divergences
}

// Buffered is the number of ticks waiting for the next submission.
func (s *Simulator) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Tick advances the local board by one frame and buffers the input. A full
// chunk, or a board that just ended, triggers a submission and a resync
// before Tick returns.
func (s *Simulator) Tick(ctx context.Context, action, momentum int64) (arkanoid.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return s.state, ErrGameOver
	}
	t := arkanoid.Tick{Action: action, Momentum: momentum}
	s.state.ProcessTick(t)
	s.buf = append(s.buf, t)
	if len(s.buf) == arkanoid.ChunkLength || s.state.Terminal() {
		if err := s.flushLocked(ctx); err != nil {
			return s.state, err
		}
	}
	return s.state, nil
}

// Flush pads and submits a partial chunk. It is a no-op when nothing is
// buffered.
func (s *Simulator) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *Simulator) flushLocked(ctx context.Context) error {
	ticks := make([]arkanoid.Tick, arkanoid.ChunkLength)
	copy(ticks, s.buf)

	blob, err := s.sub.Submit(ctx, s.matchID, arkanoid.Chunk{Ticks: ticks})
	if err != nil {
		// keep the buffer so the caller can retry with Flush
		return fmt.Errorf("submit chunk %d: %w", s.chunks, err)
	}
	s.buf = s.buf[:0]
	s.chunks++

	committed, err := arkanoid.Decode(blob)
	if err != nil {
		return fmt.Errorf("decode committed state: %w", err)
	}
	if !bytes.Equal(blob, s.state.Encode()) {
		s.divergences++
	}
	s.state = *committed
	return nil
}

// Input returns the player's input for the next frame.
type Input func() (action, momentum int64)

// Run ticks at the given rate until the game ends or ctx is cancelled.
// onFrame, if set, receives every local board. A partial chunk left when
// ctx is cancelled is not submitted.
func (s *Simulator) Run(ctx context.Context, rate time.Duration, input Input, onFrame func(arkanoid.State)) error {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			action, momentum := input()
			st, err := s.Tick(ctx, action, momentum)
			if onFrame != nil {
				onFrame(st)
			}
			if err != nil {
				return err
			}
			if st.Terminal() {
				return nil
			}
		}
	}
}
