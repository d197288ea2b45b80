// Package arkanoid implements the deterministic brick-breaker physics game.
// All coordinates are integer pixel units; the field origin is top-left and
// the paddle runs along the bottom edge.
package arkanoid

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tolelom/arcadechain/fixedpoint"
	"github.com/tolelom/arcadechain/game"
)

const (
	FieldWidth        = 500
	FieldHeight       = 500
	BrickHalfWidth    = 15
	PlatformHalfWidth = 50
	MaxBricks         = 10
	ChunkLength       = 10

	DefaultBallX      = 250
	DefaultBallY      = 250
	DefaultBallSpeedX = 40
	DefaultBallSpeedY = -30
	DefaultPlatformX  = FieldWidth / 2
	MaxPlatformSpeed  = 160

	// MaxMomentum bounds the horizontal kick a paddle hit adds to the ball.
	MaxMomentum = MaxPlatformSpeed / 10

	// BlobSize is the encoded width of State.
	BlobSize = 4*8 + 8 + MaxBricks*(8+8+1) + 8 + 4 + 1
)

// Status is the lifecycle of a single board.
type Status uint8

const (
	Running Status = iota
	Won
	Lost
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Won:
		return "won"
	case Lost:
		return "lost"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Ball is the ball position and per-tick velocity.
type Ball struct {
	X  int64 `json:"x"`
	Y  int64 `json:"y"`
	VX int64 `json:"vx"`
	VY int64 `json:"vy"`
}

// Brick is a 30x30 box anchored at its top-left corner. Hits 0 means gone.
type Brick struct {
	X    int64 `json:"x"`
	Y    int64 `json:"y"`
	Hits uint8 `json:"hits"`
}

// Tick is one frame of player input.
type Tick struct {
	Action   int64 `json:"action"`
	Momentum int64 `json:"momentum"`
}

// State is the full physics state of one board.
type State struct {
	Ball    Ball             `json:"ball"`
	PaddleX int64            `json:"paddle_x"`
	Bricks  [MaxBricks]Brick `json:"bricks"`
	Score   uint64           `json:"score"`
	Ticks   uint32           `json:"ticks"`
	Status  Status           `json:"status"`
}

// DefaultLevel is the brick layout every board starts from: two rows of
// five, the upper row taking two hits.
func DefaultLevel() [MaxBricks]Brick {
	var bricks [MaxBricks]Brick
	for i := 0; i < MaxBricks; i++ {
		row, col := int64(i/5), int64(i%5)
		bricks[i] = Brick{X: 35 + col*95, Y: 60 + row*60, Hits: uint8(2 - row)}
	}
	return bricks
}

// NewState returns a board at its starting position.
func NewState() State {
	return State{
		Ball:    Ball{X: DefaultBallX, Y: DefaultBallY, VX: DefaultBallSpeedX, VY: DefaultBallSpeedY},
		PaddleX: DefaultPlatformX,
		Bricks:  DefaultLevel(),
	}
}

// Terminal reports whether the board is won or lost.
func (s *State) Terminal() bool { return s.Status != Running }

// ProcessTick advances the board by one frame. Ticks on a terminal board are
// ignored.
func (s *State) ProcessTick(t Tick) {
	if s.Terminal() {
		return
	}
	s.Ticks++

	dx := fixedpoint.Clamp(t.Action, -MaxPlatformSpeed, MaxPlatformSpeed)
	s.PaddleX = fixedpoint.Clamp(fixedpoint.SatAdd(s.PaddleX, dx), PlatformHalfWidth, FieldWidth-PlatformHalfWidth)

	b := &s.Ball
	b.X = fixedpoint.SatAdd(b.X, b.VX)
	b.Y = fixedpoint.SatAdd(b.Y, b.VY)

	if b.X < 0 {
		b.X, b.VX = -b.X, -b.VX
	}
	if b.X > FieldWidth {
		b.X, b.VX = 2*FieldWidth-b.X, -b.VX
	}
	if b.Y < 0 {
		b.Y, b.VY = -b.Y, -b.VY
	}
	// a speed above the field width reflects past the opposite wall
	b.X = fixedpoint.Clamp(b.X, 0, FieldWidth)
	b.Y = fixedpoint.Max(b.Y, 0)

	if b.Y > FieldHeight {
		if fixedpoint.Abs(fixedpoint.SatSub(b.X, s.PaddleX)) > PlatformHalfWidth {
			s.Status = Lost
			return
		}
		b.Y, b.VY = fixedpoint.Clamp(2*FieldHeight-b.Y, 0, FieldHeight), -b.VY
		b.VX = fixedpoint.SatAdd(b.VX, fixedpoint.Clamp(t.Momentum, -MaxMomentum, MaxMomentum))
	}

	for i := range s.Bricks {
		br := &s.Bricks[i]
		if br.Hits == 0 {
			continue
		}
		left, right := br.X, br.X+2*BrickHalfWidth
		top, bottom := br.Y, br.Y+2*BrickHalfWidth
		if !(left < b.X && b.X < right && top < b.Y && b.Y < bottom) {
			continue
		}
		leftDist, rightDist := fixedpoint.Abs(b.X-left), fixedpoint.Abs(b.X-right)
		topDist, bottomDist := fixedpoint.Abs(b.Y-top), fixedpoint.Abs(b.Y-bottom)
		if fixedpoint.Min(leftDist, rightDist) < fixedpoint.Min(topDist, bottomDist) {
			if leftDist < rightDist {
				b.X = 2*left - b.X
			} else {
				b.X = 2*right - b.X
			}
			b.VX = -b.VX
		} else {
			if topDist < bottomDist {
				b.Y = 2*top - b.Y
			} else {
				b.Y = 2*bottom - b.Y
			}
			b.VY = -b.VY
		}
		br.Hits--
		s.Score++
	}

	for _, br := range s.Bricks {
		if br.Hits > 0 {
			return
		}
	}
	s.Status = Won
}

// Encode writes the state as a fixed-width big-endian record.
func (s *State) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(BlobSize)
	// State contains only fixed-size fields, so Write cannot fail.
	_ = binary.Write(&buf, binary.BigEndian, s)
	return buf.Bytes()
}

// Decode parses a blob written by Encode.
func Decode(blob []byte) (*State, error) {
	if len(blob) != BlobSize {
		return nil, fmt.Errorf("%w: arkanoid blob is %d bytes, want %d", game.ErrBadState, len(blob), BlobSize)
	}
	var s State
	if err := binary.Read(bytes.NewReader(blob), binary.BigEndian, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrBadState, err)
	}
	if s.Status > Lost {
		return nil, fmt.Errorf("%w: status %d", game.ErrBadState, s.Status)
	}
	if s.PaddleX < PlatformHalfWidth || s.PaddleX > FieldWidth-PlatformHalfWidth {
		return nil, fmt.Errorf("%w: paddle at %d", game.ErrInvariant, s.PaddleX)
	}
	return &s, nil
}
