package arkanoid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/arcadechain/game"
)

// GameID is the registry id of the physics game.
const GameID = "arkanoid"

func init() {
	game.Register(Engine{})
}

// Chunk is the move payload: exactly ChunkLength ticks.
type Chunk struct {
	Ticks []Tick `json:"ticks"`
}

// Engine gives every seat its own board and advances it one chunk per turn.
type Engine struct{}

var _ game.Describer = Engine{}

func (Engine) ID() string { return GameID }

func (Engine) NewStates(players int) ([][]byte, error) {
	if players < 1 {
		return nil, errors.New("arkanoid: at least one player required")
	}
	states := make([][]byte, players)
	for i := range states {
		s := NewState()
		states[i] = s.Encode()
	}
	return states, nil
}

func (Engine) Apply(states [][]byte, seat int, raw json.RawMessage) (game.Transition, error) {
	if seat < 0 || seat >= len(states) {
		return game.Transition{}, fmt.Errorf("%w: seat %d", game.ErrBadState, seat)
	}
	var chunk Chunk
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&chunk); err != nil {
		return game.Transition{}, fmt.Errorf("%w: %v", game.ErrInvalidMove, err)
	}
	if len(chunk.Ticks) != ChunkLength {
		return game.Transition{}, fmt.Errorf("%w: chunk has %d ticks, want %d", game.ErrInvalidMove, len(chunk.Ticks), ChunkLength)
	}
	s, err := Decode(states[seat])
	if err != nil {
		return game.Transition{}, err
	}
	if s.Terminal() {
		return game.Transition{}, fmt.Errorf("%w: board already %s", game.ErrInvalidMove, s.Status)
	}

	before := s.Score
	for _, t := range chunk.Ticks {
		s.ProcessTick(t)
	}

	out := game.CloneStates(states)
	out[seat] = s.Encode()
	return game.Transition{States: out, Terminal: s.Terminal(), ScoreDelta: s.Score - before}, nil
}

// Resolve gives a cleared board to its owner. A lost ball hands a two-seat
// match to the opponent; larger tables end without a winner.
func (Engine) Resolve(states [][]byte, seat int) int {
	if seat < 0 || seat >= len(states) {
		return game.NoWinner
	}
	s, err := Decode(states[seat])
	if err != nil {
		return game.NoWinner
	}
	switch {
	case s.Status == Won:
		return seat
	case s.Status == Lost && len(states) == 2:
		return 1 - seat
	}
	return game.NoWinner
}

func (Engine) Describe(blob []byte) (any, error) {
	return Decode(blob)
}
