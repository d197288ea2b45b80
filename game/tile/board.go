// Package tile implements the 4x4 tile-merge game. Cells hold exponents:
// a cell with exponent e shows the value 2^e, and 0 is empty.
package tile

import (
	"fmt"

	"github.com/tolelom/arcadechain/fixedpoint"
	"github.com/tolelom/arcadechain/game"
)

const (
	Rows        = 4
	Cols        = 4
	CellBits    = 5
	ScoreBits   = 31
	MaxExponent = 17

	// SpawnExponent is the only tile a player may place: the value 2.
	SpawnExponent = 1

	// BlobSize is the packed width: 16 cells x 5 bits, 1 ended bit, 31 score bits.
	BlobSize = (Rows*Cols*CellBits + 1 + ScoreBits) / 8
)

// Direction is the edge tiles slide toward.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Board is the decoded tile-merge state.
type Board struct {
	Cells [Rows][Cols]uint8 `json:"cells"`
	Score uint32            `json:"score"`
	Ended bool              `json:"ended"`
}

// HasNextMove reports whether any empty cell or equal orthogonal pair exists.
func (b *Board) HasNextMove() bool {
	for i := 0; i < Rows; i++ {
		for j := 0; j < Cols; j++ {
			if b.Cells[i][j] == 0 {
				return true
			}
			if i+1 < Rows && b.Cells[i][j] == b.Cells[i+1][j] {
				return true
			}
			if j+1 < Cols && b.Cells[i][j] == b.Cells[i][j+1] {
				return true
			}
		}
	}
	return false
}

func (b *Board) refreshEnded() {
	b.Ended = !b.HasNextMove()
}

// line returns the coordinates of line k ordered from the leading edge of dir.
func line(dir Direction, k int) ([Cols][2]int, error) {
	var out [Cols][2]int
	for m := 0; m < Cols; m++ {
		switch dir {
		case Left:
			out[m] = [2]int{k, m}
		case Right:
			out[m] = [2]int{k, Cols - 1 - m}
		case Up:
			out[m] = [2]int{m, k}
		case Down:
			out[m] = [2]int{Rows - 1 - m, k}
		default:
			return out, fmt.Errorf("%w: unknown direction %q", game.ErrInvalidMove, dir)
		}
	}
	return out, nil
}

// slideLine compacts vals toward index 0 and merges equal neighbours once.
// A freshly merged cell never merges again in the same call.
func slideLine(vals [Cols]uint8) ([Cols]uint8, uint64, error) {
	var compact []uint8
	for _, v := range vals {
		if v != 0 {
			compact = append(compact, v)
		}
	}
	var out [Cols]uint8
	var gained uint64
	k := 0
	for i := 0; i < len(compact); i++ {
		if i+1 < len(compact) && compact[i] == compact[i+1] {
			e := compact[i] + 1
			if e > MaxExponent {
				return out, 0, fmt.Errorf("%w: merged exponent %d exceeds %d", game.ErrInvariant, e, MaxExponent)
			}
			pts, err := fixedpoint.Pow2(uint(e))
			if err != nil {
				return out, 0, fmt.Errorf("%w: %v", game.ErrInvariant, err)
			}
			out[k] = e
			gained += pts
			i++
		} else {
			out[k] = compact[i]
		}
		k++
	}
	return out, gained, nil
}

// Move slides every line toward dir. It returns the score gained. On error
// the board is unchanged.
func (b *Board) Move(dir Direction) (uint64, error) {
	next := *b
	var gained uint64
	for k := 0; k < Rows; k++ {
		coords, err := line(dir, k)
		if err != nil {
			return 0, err
		}
		var vals [Cols]uint8
		for m, c := range coords {
			vals[m] = next.Cells[c[0]][c[1]]
		}
		slid, pts, err := slideLine(vals)
		if err != nil {
			return 0, err
		}
		for m, c := range coords {
			next.Cells[c[0]][c[1]] = slid[m]
		}
		gained += pts
	}
	score, err := fixedpoint.NewBounded(ScoreBits, uint64(next.Score))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrInvariant, err)
	}
	if score, err = score.Add(gained); err != nil {
		return 0, fmt.Errorf("%w: score: %v", game.ErrInvariant, err)
	}
	next.Score = uint32(score.Value())
	next.refreshEnded()
	*b = next
	return gained, nil
}

// PlaceTile puts a SpawnExponent tile into an empty cell.
func (b *Board) PlaceTile(row, col int) error {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		return fmt.Errorf("%w: cell (%d,%d) off board", game.ErrInvalidMove, row, col)
	}
	if b.Cells[row][col] != 0 {
		return fmt.Errorf("%w: (%d,%d)", game.ErrCellOccupied, row, col)
	}
	b.Cells[row][col] = SpawnExponent
	b.refreshEnded()
	return nil
}

// Encode packs the board into BlobSize bytes, most significant bit first.
func (b *Board) Encode() []byte {
	w := bitWriter{buf: make([]byte, BlobSize)}
	for i := 0; i < Rows; i++ {
		for j := 0; j < Cols; j++ {
			w.write(uint64(b.Cells[i][j]), CellBits)
		}
	}
	ended := uint64(0)
	if b.Ended {
		ended = 1
	}
	w.write(ended, 1)
	w.write(uint64(b.Score), ScoreBits)
	return w.buf
}

// Decode unpacks a blob produced by Encode. Cells outside 0..MaxExponent and
// a stale ended flag are rejected.
func Decode(blob []byte) (*Board, error) {
	if len(blob) != BlobSize {
		return nil, fmt.Errorf("%w: tile blob is %d bytes, want %d", game.ErrBadState, len(blob), BlobSize)
	}
	r := bitReader{buf: blob}
	var b Board
	for i := 0; i < Rows; i++ {
		for j := 0; j < Cols; j++ {
			v := r.read(CellBits)
			if v > MaxExponent {
				return nil, fmt.Errorf("%w: cell (%d,%d) holds exponent %d", game.ErrInvariant, i, j, v)
			}
			b.Cells[i][j] = uint8(v)
		}
	}
	b.Ended = r.read(1) == 1
	b.Score = uint32(r.read(ScoreBits))
	if b.Ended == b.HasNextMove() {
		return nil, fmt.Errorf("%w: stale ended flag", game.ErrBadState)
	}
	return &b, nil
}

type bitWriter struct {
	buf []byte
	pos int
}

func (w *bitWriter) write(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if v>>uint(i)&1 == 1 {
			w.buf[w.pos/8] |= 0x80 >> uint(w.pos%8)
		}
		w.pos++
	}
}

type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) read(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v <<= 1
		if r.buf[r.pos/8]&(0x80>>uint(r.pos%8)) != 0 {
			v |= 1
		}
		r.pos++
	}
	return v
}
