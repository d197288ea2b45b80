// Package randzu implements five-in-a-row on a shared 15x15 board. The mover
// claims a win by naming the line; the engine only checks the claim.
package randzu

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tolelom/arcadechain/game"
)

const (
	GameID    = "randzu"
	Size      = 15
	LineToWin = 5
	CellBits  = 2
	// MaxSeats is bounded by the cell width: 0 is empty, seat+1 otherwise.
	MaxSeats = 1<<CellBits - 1
	BlobSize = (Size*Size*CellBits + 7) / 8
)

func init() {
	game.Register(Engine{})
}

// Field is the decoded board. Cells hold 0 or seat+1.
type Field [Size][Size]uint8

// Witness names the first cell and direction of a winning line.
type Witness struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Move places one stone, optionally claiming a win.
type Move struct {
	X   int      `json:"x"`
	Y   int      `json:"y"`
	Win *Witness `json:"win,omitempty"`
}

func (f *Field) Encode() []byte {
	buf := make([]byte, BlobSize)
	for i := 0; i < Size*Size; i++ {
		v := f[i/Size][i%Size] & MaxSeats
		bit := i * CellBits
		buf[bit/8] |= v << (8 - CellBits - bit%8)
	}
	return buf
}

func Decode(blob []byte) (*Field, error) {
	if len(blob) != BlobSize {
		return nil, fmt.Errorf("%w: randzu blob is %d bytes, want %d", game.ErrBadState, len(blob), BlobSize)
	}
	var f Field
	for i := 0; i < Size*Size; i++ {
		bit := i * CellBits
		f[i/Size][i%Size] = blob[bit/8] >> (8 - CellBits - bit%8) & MaxSeats
	}
	// trailing pad bits must be zero
	if pad := BlobSize*8 - Size*Size*CellBits; blob[BlobSize-1]&(1<<pad-1) != 0 {
		return nil, fmt.Errorf("%w: non-zero padding", game.ErrBadState)
	}
	return &f, nil
}

// Full reports whether no empty cell remains.
func (f *Field) Full() bool {
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			if f[x][y] == 0 {
				return false
			}
		}
	}
	return true
}

// Check verifies that w names LineToWin cells owned by mark.
func (f *Field) Check(w Witness, mark uint8) error {
	if w.DX < -1 || w.DX > 1 || w.DY < -1 || w.DY > 1 || (w.DX == 0 && w.DY == 0) {
		return fmt.Errorf("%w: direction (%d,%d)", game.ErrMalformedWitness, w.DX, w.DY)
	}
	for k := 0; k < LineToWin; k++ {
		x, y := w.X+w.DX*k, w.Y+w.DY*k
		if x < 0 || x >= Size || y < 0 || y >= Size {
			return fmt.Errorf("%w: line leaves the board at (%d,%d)", game.ErrWinNotProven, x, y)
		}
		if f[x][y] != mark {
			return fmt.Errorf("%w: (%d,%d) is not yours", game.ErrWinNotProven, x, y)
		}
	}
	return nil
}

// FindWin searches for any winning line of mark.
func (f *Field) FindWin(mark uint8) (Witness, bool) {
	dirs := [][2]int{{0, 1}, {1, 0}, {1, 1}, {-1, 1}}
	for _, d := range dirs {
		for x := 0; x < Size; x++ {
			for y := 0; y < Size; y++ {
				w := Witness{X: x, Y: y, DX: d[0], DY: d[1]}
				if f.Check(w, mark) == nil {
					return w, true
				}
			}
		}
	}
	return Witness{}, false
}

// Engine plays every seat on one shared board.
type Engine struct{}

var (
	_ game.Describer   = Engine{}
	_ game.SeatLimiter = Engine{}
)

func (Engine) ID() string { return GameID }

// MaxPlayers is bounded by the cell width.
func (Engine) MaxPlayers() int { return MaxSeats }

func (Engine) NewStates(players int) ([][]byte, error) {
	if players < 1 || players > MaxSeats {
		return nil, fmt.Errorf("randzu: %d players, want 1..%d", players, MaxSeats)
	}
	var f Field
	return [][]byte{f.Encode()}, nil
}

func (Engine) Apply(states [][]byte, seat int, raw json.RawMessage) (game.Transition, error) {
	if len(states) != 1 || seat < 0 || seat >= MaxSeats {
		return game.Transition{}, fmt.Errorf("%w: shared board expected", game.ErrBadState)
	}
	var mv Move
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&mv); err != nil {
		return game.Transition{}, fmt.Errorf("%w: %v", game.ErrInvalidMove, err)
	}
	if mv.X < 0 || mv.X >= Size || mv.Y < 0 || mv.Y >= Size {
		return game.Transition{}, fmt.Errorf("%w: (%d,%d) off board", game.ErrInvalidMove, mv.X, mv.Y)
	}
	f, err := Decode(states[0])
	if err != nil {
		return game.Transition{}, err
	}
	if f[mv.X][mv.Y] != 0 {
		return game.Transition{}, fmt.Errorf("%w: (%d,%d)", game.ErrCellOccupied, mv.X, mv.Y)
	}
	mark := uint8(seat + 1)
	f[mv.X][mv.Y] = mark

	tr := game.Transition{Terminal: f.Full()}
	if mv.Win != nil {
		if err := f.Check(*mv.Win, mark); err != nil {
			return game.Transition{}, err
		}
		tr.Terminal, tr.ScoreDelta = true, 1
	}
	tr.States = [][]byte{f.Encode()}
	return tr, nil
}

// Resolve returns seat when it holds a winning line, otherwise a draw.
func (Engine) Resolve(states [][]byte, seat int) int {
	if len(states) != 1 || seat < 0 || seat >= MaxSeats {
		return game.NoWinner
	}
	f, err := Decode(states[0])
	if err != nil {
		return game.NoWinner
	}
	if _, ok := f.FindWin(uint8(seat + 1)); ok {
		return seat
	}
	return game.NoWinner
}

func (Engine) Describe(blob []byte) (any, error) {
	return Decode(blob)
}
