package randzu

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/arcadechain/game"
)

func place(t *testing.T, states [][]byte, seat, x, y int, win *Witness) (game.Transition, error) {
	t.Helper()
	raw, err := json.Marshal(Move{X: x, Y: y, Win: win})
	require.NoError(t, err)
	return Engine{}.Apply(states, seat, raw)
}

func TestEncodeDecode(t *testing.T) {
	var f Field
	f[0][0], f[7][3], f[14][14] = 1, 2, 3
	blob := f.Encode()
	require.Len(t, blob, BlobSize)
	got, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, f, *got)

	blob[BlobSize-1] |= 0x01
	_, err = Decode(blob)
	assert.ErrorIs(t, err, game.ErrBadState)
}

func TestOccupiedAndBounds(t *testing.T) {
	states, err := Engine{}.NewStates(2)
	require.NoError(t, err)
	require.Len(t, states, 1)

	tr, err := place(t, states, 0, 7, 7, nil)
	require.NoError(t, err)
	assert.False(t, tr.Terminal)

	_, err = place(t, tr.States, 1, 7, 7, nil)
	assert.ErrorIs(t, err, game.ErrCellOccupied)
	_, err = place(t, tr.States, 1, Size, 0, nil)
	assert.ErrorIs(t, err, game.ErrInvalidMove)
}

func TestWinningWitness(t *testing.T) {
	var f Field
	for y := 0; y < LineToWin-1; y++ {
		f[3][y] = 1
	}
	states := [][]byte{f.Encode()}

	_, err := place(t, states, 0, 3, 4, &Witness{X: 3, Y: 0, DX: 2, DY: 0})
	assert.ErrorIs(t, err, game.ErrMalformedWitness)
	_, err = place(t, states, 0, 3, 4, &Witness{X: 3, Y: 0, DX: 0, DY: 0})
	assert.ErrorIs(t, err, game.ErrMalformedWitness)
	_, err = place(t, states, 0, 3, 4, &Witness{X: 3, Y: 1, DX: 0, DY: 1})
	assert.ErrorIs(t, err, game.ErrWinNotProven)
	_, err = place(t, states, 1, 3, 4, &Witness{X: 3, Y: 0, DX: 0, DY: 1})
	assert.ErrorIs(t, err, game.ErrWinNotProven)

	tr, err := place(t, states, 0, 3, 4, &Witness{X: 3, Y: 0, DX: 0, DY: 1})
	require.NoError(t, err)
	assert.True(t, tr.Terminal)
	assert.Equal(t, 0, Engine{}.Resolve(tr.States, 0))
}

func TestReverseDiagonalWitness(t *testing.T) {
	var f Field
	for k := 1; k < LineToWin; k++ {
		f[10-k][k] = 2
	}
	tr, err := place(t, [][]byte{f.Encode()}, 1, 10, 0, &Witness{X: 10, Y: 0, DX: -1, DY: 1})
	require.NoError(t, err)
	assert.True(t, tr.Terminal)

	w, ok := f.FindWin(2)
	assert.False(t, ok, fmt.Sprint(w))
}

func TestFullBoardIsDraw(t *testing.T) {
	var f Field
	for x := 0; x < Size; x++ {
		for y := 0; y < Size; y++ {
			// runs never exceed two in any direction
			f[x][y] = uint8((x/2+y)%2 + 1)
		}
	}
	f[14][14] = 0
	states := [][]byte{f.Encode()}

	tr, err := place(t, states, 1, 14, 14, nil)
	require.NoError(t, err)
	assert.True(t, tr.Terminal)
	assert.Equal(t, game.NoWinner, Engine{}.Resolve(tr.States, 1))
}

func TestNewStatesSeatLimit(t *testing.T) {
	_, err := Engine{}.NewStates(MaxSeats + 1)
	assert.Error(t, err)
}
