package replay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/arcadechain/game/arkanoid"
)

// chain plays submitted chunks on its own board, the way a node would.
type chain struct {
	mu     sync.Mutex
	board  arkanoid.State
	chunks []arkanoid.Chunk
	fail   error
	tamper func(*arkanoid.State)
}

func newChain(board arkanoid.State) *chain { return &chain{board: board} }

func (c *chain) Submit(_ context.Context, _ uint64, chunk arkanoid.Chunk) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	c.chunks = append(c.chunks, chunk)
	for _, t := range chunk.Ticks {
		c.board.ProcessTick(t)
	}
	if c.tamper != nil {
		c.tamper(&c.board)
	}
	return c.board.Encode(), nil
}

// doomed is a board whose ball leaves the field on the next tick.
func doomed() arkanoid.State {
	s := arkanoid.NewState()
	s.Ball = arkanoid.Ball{X: 10, Y: 490, VX: 0, VY: 30}
	return s
}

func TestChunkSubmittedOncePerTenTicks(t *testing.T) {
	c := newChain(arkanoid.NewState())
	sim := New(1, c)
	ctx := context.Background()

	for i := 0; i < arkanoid.ChunkLength-1; i++ {
		_, err := sim.Tick(ctx, 3, 0)
		require.NoError(t, err)
	}
	assert.Empty(t, c.chunks)
	assert.Equal(t, arkanoid.ChunkLength-1, sim.Buffered())

	_, err := sim.Tick(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, c.chunks, 1)
	assert.Len(t, c.chunks[0].Ticks, arkanoid.ChunkLength)
	assert.Equal(t, int64(3), c.chunks[0].Ticks[9].Action)
	assert.Equal(t, 0, sim.Buffered())
	assert.Equal(t, 1, sim.Chunks())
	assert.Equal(t, 0, sim.Divergences())

	st := sim.State()
	assert.Equal(t, c.board.Encode(), st.Encode())
}

func TestResyncOverwritesLocalBoard(t *testing.T) {
	c := newChain(arkanoid.NewState())
	c.tamper = func(s *arkanoid.State) { s.PaddleX = 100 }
	sim := New(1, c)
	ctx := context.Background()

	for i := 0; i < arkanoid.ChunkLength; i++ {
		_, err := sim.Tick(ctx, 0, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, sim.Divergences())
	assert.Equal(t, int64(100), sim.State().PaddleX)
}

func TestTerminalBoardFlushesPaddedChunk(t *testing.T) {
	c := newChain(doomed())
	sim := NewFrom(7, doomed(), c)
	ctx := context.Background()

	st, err := sim.Tick(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, arkanoid.Lost, st.Status)

	require.Len(t, c.chunks, 1)
	ticks := c.chunks[0].Ticks
	require.Len(t, ticks, arkanoid.ChunkLength)
	assert.Equal(t, arkanoid.Tick{Action: 5, Momentum: 2}, ticks[0])
	for _, tk := range ticks[1:] {
		assert.Zero(t, tk)
	}
	assert.Equal(t, 0, sim.Divergences())

	_, err = sim.Tick(ctx, 0, 0)
	assert.ErrorIs(t, err, ErrGameOver)
	assert.Len(t, c.chunks, 1)
}

func TestFlushPartialChunk(t *testing.T) {
	c := newChain(arkanoid.NewState())
	sim := New(1, c)
	ctx := context.Background()

	require.NoError(t, sim.Flush(ctx))
	assert.Empty(t, c.chunks)

	for i := 0; i < 4; i++ {
		_, err := sim.Tick(ctx, -2, 0)
		require.NoError(t, err)
	}
	require.NoError(t, sim.Flush(ctx))
	require.Len(t, c.chunks, 1)
	assert.Equal(t, int64(-2), c.chunks[0].Ticks[3].Action)
	assert.Zero(t, c.chunks[0].Ticks[4])
	assert.Equal(t, 0, sim.Buffered())
	// the node ran six idle ticks the local board never saw
	assert.Equal(t, 1, sim.Divergences())
	assert.Equal(t, uint32(arkanoid.ChunkLength), sim.State().Ticks)
}

func TestSubmitErrorKeepsBuffer(t *testing.T) {
	boom := errors.New("node unreachable")
	c := newChain(arkanoid.NewState())
	c.fail = boom
	sim := New(1, c)
	ctx := context.Background()

	for i := 0; i < arkanoid.ChunkLength-1; i++ {
		_, err := sim.Tick(ctx, 1, 0)
		require.NoError(t, err)
	}
	_, err := sim.Tick(ctx, 1, 0)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, arkanoid.ChunkLength, sim.Buffered())
	assert.Equal(t, 0, sim.Chunks())

	c.fail = nil
	require.NoError(t, sim.Flush(ctx))
	assert.Equal(t, 0, sim.Buffered())
	assert.Equal(t, 1, sim.Chunks())
	assert.Equal(t, 0, sim.Divergences())
}

func TestRunStopsWhenBoardEnds(t *testing.T) {
	c := newChain(doomed())
	sim := NewFrom(1, doomed(), c)

	var frames int
	err := sim.Run(context.Background(), 1, func() (int64, int64) { return 0, 0 }, func(arkanoid.State) { frames++ })
	require.NoError(t, err)
	assert.Equal(t, 1, frames)
	assert.Len(t, c.chunks, 1)
}
