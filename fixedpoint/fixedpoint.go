// Package fixedpoint provides the deterministic integer arithmetic used by
// every state-transition rule. Nothing in here touches floating point, and
// every operation that could leave its declared range reports an error
// instead of wrapping.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a result does not fit its declared width.
	ErrOverflow = errors.New("fixedpoint: overflow")
	// ErrOutOfRange is returned when an input is outside its declared width.
	ErrOutOfRange = errors.New("fixedpoint: value out of range")
	// ErrDivByZero is returned by MulDiv for a zero divisor.
	ErrDivByZero = errors.New("fixedpoint: division by zero")
)

// Bounded is an unsigned integer restricted to a fixed number of bits.
type Bounded struct {
	bits  uint
	value uint64
}

// NewBounded returns v as a Bounded of the given width (1..63 bits).
func NewBounded(width uint, v uint64) (Bounded, error) {
	if width == 0 || width > 63 {
		return Bounded{}, fmt.Errorf("%w: width %d", ErrOutOfRange, width)
	}
	b := Bounded{bits: width}
	if v > b.Max() {
		return Bounded{}, fmt.Errorf("%w: %d does not fit in %d bits", ErrOutOfRange, v, width)
	}
	b.value = v
	return b, nil
}

// Value returns the raw value.
func (b Bounded) Value() uint64 { return b.value }

// Bits returns the declared width.
func (b Bounded) Bits() uint { return b.bits }

// Max returns the largest value representable in the declared width.
func (b Bounded) Max() uint64 { return 1<<b.bits - 1 }

// Add returns b+delta, or ErrOverflow if it leaves the declared width.
func (b Bounded) Add(delta uint64) (Bounded, error) {
	sum, err := CheckedAddU64(b.value, delta)
	if err != nil || sum > b.Max() {
		return b, fmt.Errorf("%w: %d + %d exceeds %d bits", ErrOverflow, b.value, delta, b.bits)
	}
	return Bounded{bits: b.bits, value: sum}, nil
}

// Inc is Add(1).
func (b Bounded) Inc() (Bounded, error) { return b.Add(1) }

// CheckedAddU64 returns a+b or ErrOverflow.
func CheckedAddU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// CheckedMulU64 returns a*b or ErrOverflow.
func CheckedMulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return lo, nil
}

// SatAdd adds two signed values, saturating at the int64 limits.
func SatAdd(a, b int64) int64 {
	sum := a + b
	// overflow iff both operands share a sign that the result does not
	if (a >= 0) == (b >= 0) && (sum >= 0) != (a >= 0) {
		if a >= 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return sum
}

// SatSub subtracts b from a, saturating at the int64 limits.
func SatSub(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return a - b
	}
	return SatAdd(a, -b)
}

// SatNeg negates v; MinInt64 saturates to MaxInt64.
func SatNeg(v int64) int64 {
	if v == math.MinInt64 {
		return math.MaxInt64
	}
	return -v
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Abs returns |v|, saturating for MinInt64.
func Abs(v int64) int64 {
	if v < 0 {
		return SatNeg(v)
	}
	return v
}

// Min returns the smaller of a and b; ties return a.
func Min(a, b int64) int64 {
	if b < a {
		return b
	}
	return a
}

// Max returns the larger of a and b; ties return a.
func Max(a, b int64) int64 {
	if b > a {
		return b
	}
	return a
}

// Pow2 returns 2^e for e <= 62.
func Pow2(e uint) (uint64, error) {
	if e > 62 {
		return 0, fmt.Errorf("%w: 2^%d", ErrOverflow, e)
	}
	return 1 << e, nil
}

// MulDiv returns floor(a*b/d). The product is computed in 256 bits so it
// never overflows; the quotient must fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivByZero
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrOverflow, a, b, d)
	}
	return x.Uint64(), nil
}
