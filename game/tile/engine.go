package tile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/arcadechain/game"
)

// GameID is the registry id of the tile-merge game.
const GameID = "2048"

func init() {
	game.Register(Engine{})
}

// Spawn places a new 2-tile after the slide. The tile value is fixed, so a
// payload naming one is rejected as an unknown field.
type Spawn struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Move is one turn: an optional slide followed by an optional spawn.
type Move struct {
	Dir   Direction `json:"dir,omitempty"`
	Spawn *Spawn    `json:"spawn,omitempty"`
}

// Engine runs one independent board per seat.
type Engine struct{}

var _ game.Describer = Engine{}

func (Engine) ID() string { return GameID }

func (Engine) NewStates(players int) ([][]byte, error) {
	if players < 1 {
		return nil, errors.New("tile: at least one player required")
	}
	states := make([][]byte, players)
	for i := range states {
		var b Board
		states[i] = b.Encode()
	}
	return states, nil
}

// Apply runs the turn of seat against its own board.
func (Engine) Apply(states [][]byte, seat int, raw json.RawMessage) (game.Transition, error) {
	if seat < 0 || seat >= len(states) {
		return game.Transition{}, fmt.Errorf("%w: seat %d", game.ErrBadState, seat)
	}
	mv, err := decodeMove(raw)
	if err != nil {
		return game.Transition{}, err
	}
	b, err := Decode(states[seat])
	if err != nil {
		return game.Transition{}, err
	}
	if b.Ended {
		return game.Transition{}, fmt.Errorf("%w: board has no moves left", game.ErrInvalidMove)
	}

	var gained uint64
	if mv.Dir != "" {
		if gained, err = b.Move(mv.Dir); err != nil {
			return game.Transition{}, err
		}
	}
	if mv.Spawn != nil {
		if err := b.PlaceTile(mv.Spawn.Row, mv.Spawn.Col); err != nil {
			return game.Transition{}, err
		}
	}

	out := game.CloneStates(states)
	out[seat] = b.Encode()
	return game.Transition{States: out, Terminal: b.Ended, ScoreDelta: gained}, nil
}

// Resolve awards the match to the strictly highest score.
func (Engine) Resolve(states [][]byte, _ int) int {
	winner, best, tied := game.NoWinner, uint32(0), false
	for seat, blob := range states {
		b, err := Decode(blob)
		if err != nil {
			return game.NoWinner
		}
		switch {
		case winner == game.NoWinner || b.Score > best:
			winner, best, tied = seat, b.Score, false
		case b.Score == best:
			tied = true
		}
	}
	if tied {
		return game.NoWinner
	}
	return winner
}

// Describe decodes a blob for the query surface.
func (Engine) Describe(blob []byte) (any, error) {
	return Decode(blob)
}

func decodeMove(raw json.RawMessage) (Move, error) {
	var mv Move
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&mv); err != nil {
		return mv, fmt.Errorf("%w: %v", game.ErrInvalidMove, err)
	}
	if mv.Dir == "" && mv.Spawn == nil {
		return mv, fmt.Errorf("%w: empty turn", game.ErrInvalidMove)
	}
	switch mv.Dir {
	case "", Up, Down, Left, Right:
	default:
		return mv, fmt.Errorf("%w: unknown direction %q", game.ErrInvalidMove, mv.Dir)
	}
	return mv, nil
}
