package fixedpoint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedRejectsOutOfWidth(t *testing.T) {
	b, err := NewBounded(5, 31)
	require.NoError(t, err)
	assert.Equal(t, uint64(31), b.Value())

	_, err = NewBounded(5, 32)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = b.Inc()
	assert.ErrorIs(t, err, ErrOverflow)

	b, err = NewBounded(31, 1<<31-2)
	require.NoError(t, err)
	b, err = b.Inc()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<31-1), b.Value())
	_, err = b.Add(1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedU64(t *testing.T) {
	_, err := CheckedAddU64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
	v, err := CheckedMulU64(1<<31, 1<<31)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<62), v)
	_, err = CheckedMulU64(1<<32, 1<<32)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSaturatingSigned(t *testing.T) {
	assert.Equal(t, int64(math.MaxInt64), SatAdd(math.MaxInt64, 1))
	assert.Equal(t, int64(math.MinInt64), SatAdd(math.MinInt64, -1))
	assert.Equal(t, int64(-3), SatAdd(2, -5))
	assert.Equal(t, int64(math.MaxInt64), SatSub(0, math.MinInt64))
	assert.Equal(t, int64(math.MaxInt64), Abs(math.MinInt64))
	assert.Equal(t, int64(7), Abs(-7))
}

func TestClampMinMax(t *testing.T) {
	assert.Equal(t, int64(-160), Clamp(-500, -160, 160))
	assert.Equal(t, int64(160), Clamp(500, -160, 160))
	assert.Equal(t, int64(3), Clamp(3, -160, 160))
	assert.Equal(t, int64(3), Min(3, 5))
	assert.Equal(t, int64(5), Max(3, 5))
}

func TestPow2(t *testing.T) {
	v, err := Pow2(17)
	require.NoError(t, err)
	assert.Equal(t, uint64(131072), v)
	_, err = Pow2(63)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivDoesNotOverflowIntermediate(t *testing.T) {
	v, err := MulDiv(math.MaxUint64, 5000, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/2), v)

	v, err = MulDiv(7, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	_, err = MulDiv(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = MulDiv(1, 1, 0)
	assert.ErrorIs(t, err, ErrDivByZero)
}
