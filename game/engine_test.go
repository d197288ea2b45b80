package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct{ id string }

func (s stubEngine) ID() string                              { return s.id }
func (s stubEngine) NewStates(players int) ([][]byte, error) { return make([][]byte, players), nil }
func (s stubEngine) Apply(states [][]byte, seat int, _ json.RawMessage) (Transition, error) {
	return Transition{States: CloneStates(states)}, nil
}
func (s stubEngine) Resolve([][]byte, int) int { return NoWinner }

func TestRegistryLookupAndDuplicate(t *testing.T) {
	r := NewRegistry()
	r.Register(stubEngine{id: "b"})
	r.Register(stubEngine{id: "a"})

	e, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", e.ID())
	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	assert.Panics(t, func() { r.Register(stubEngine{id: "a"}) })
}

func TestCloneStatesDoesNotAlias(t *testing.T) {
	in := [][]byte{{1, 2}, {3}}
	out := CloneStates(in)
	out[0][0] = 9
	assert.Equal(t, byte(1), in[0][0])
}

func TestNextSeatWraps(t *testing.T) {
	assert.Equal(t, 1, NextSeat(0, 3))
	assert.Equal(t, 2, NextSeat(1, 3))
	assert.Equal(t, 0, NextSeat(2, 3))
}

type pairEngine struct{ stubEngine }

func (pairEngine) MaxPlayers() int { return 2 }

func TestCheckSeats(t *testing.T) {
	open := stubEngine{id: "open"}
	assert.ErrorIs(t, CheckSeats(open, 1), ErrSeats)
	assert.NoError(t, CheckSeats(open, 2))
	assert.NoError(t, CheckSeats(open, 8))

	pair := pairEngine{stubEngine{id: "pair"}}
	assert.NoError(t, CheckSeats(pair, 2))
	assert.ErrorIs(t, CheckSeats(pair, 3), ErrSeats)
}
