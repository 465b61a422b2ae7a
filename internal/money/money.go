package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of minor-unit digits used when none is configured.
const DefaultScale uint8 = 2

var (
	// ErrParse is returned when a decimal string cannot be represented as Money.
	ErrParse = errors.New("money: malformed amount")
	// ErrUnderflow is returned by SubNonNegative when the result would be negative.
	ErrUnderflow = errors.New("money: result below zero")
	// ErrOverflow is returned when a result does not fit in int64 minor units.
	ErrOverflow = errors.New("money: amount out of range")
)

// MaxScale is the largest scale an amount may carry.
const MaxScale uint8 = 18

// Money is a fixed-point amount stored as integer minor units plus a scale.
// The zero value is zero at scale 0.
type Money struct {
	minor int64
	scale uint8
}

// FromMinorUnits builds a Money from an integer minor-unit amount.
func FromMinorUnits(amount int64, scale uint8) Money {
	return Money{minor: amount, scale: scale}
}

// Zero returns zero at the provided scale.
func Zero(scale uint8) Money {
	return Money{scale: scale}
}

// FromDecimalString parses a decimal string such as "150.00" or "-3.5". The
// string may not carry more fractional digits than scale allows.
func FromDecimalString(s string, scale uint8) (Money, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Money{}, fmt.Errorf("%w: empty string", ErrParse)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrParse, s)
	}
	shifted := d.Shift(int32(scale))
	if !shifted.IsInteger() {
		return Money{}, fmt.Errorf("%w: %q has more than %d fractional digits", ErrParse, s, scale)
	}
	big := shifted.BigInt()
	if !big.IsInt64() {
		return Money{}, fmt.Errorf("%w: %q out of range", ErrParse, s)
	}
	return Money{minor: big.Int64(), scale: scale}, nil
}

// FromDecimal converts d to Money, rounding half away from zero to the scale.
func FromDecimal(d decimal.Decimal, scale uint8) Money {
	return Money{minor: d.Shift(int32(scale)).Round(0).IntPart(), scale: scale}
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 { return m.minor }

// Scale returns the number of fractional digits.
func (m Money) Scale() uint8 { return m.scale }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.minor == 0 }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.minor < 0 }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.minor > 0 }

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money { return Money{minor: -m.minor, scale: m.scale} }

// Max0 clamps negative amounts to zero.
func (m Money) Max0() Money {
	if m.minor < 0 {
		return Money{scale: m.scale}
	}
	return m
}

// Rescale returns m expressed at scale. Smaller scales round half away from
// zero; larger scales fail with ErrOverflow when the minor units do not fit.
func (m Money) Rescale(scale uint8) (Money, error) {
	switch {
	case scale == m.scale:
		return m, nil
	case scale > MaxScale:
		return Money{}, fmt.Errorf("%w: scale %d", ErrOverflow, scale)
	case scale > m.scale:
		minor, ok := mul64(m.minor, pow10(scale-m.scale))
		if !ok {
			return Money{}, fmt.Errorf("%w: %s at scale %d", ErrOverflow, m, scale)
		}
		return Money{minor: minor, scale: scale}, nil
	default:
		return FromDecimal(m.Decimal(), scale), nil
	}
}

// Add returns m + o. Operands of different scales are aligned losslessly.
func (m Money) Add(o Money) (Money, error) {
	a, b, err := align(m, o)
	if err != nil {
		return Money{}, err
	}
	sum := a.minor + b.minor
	if (b.minor > 0 && sum < a.minor) || (b.minor < 0 && sum > a.minor) {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrOverflow, m, o)
	}
	return Money{minor: sum, scale: a.scale}, nil
}

// Sub returns m - o; the result may be negative.
func (m Money) Sub(o Money) (Money, error) {
	if o.minor == math.MinInt64 {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrOverflow, m, o)
	}
	return m.Add(o.Neg())
}

// SubNonNegative returns m - o and fails with ErrUnderflow when the result would be negative.
func (m Money) SubNonNegative(o Money) (Money, error) {
	out, err := m.Sub(o)
	if err != nil {
		return Money{}, err
	}
	if out.minor < 0 {
		return Money{scale: out.scale}, fmt.Errorf("%w: %s - %s", ErrUnderflow, m, o)
	}
	return out, nil
}

// MulInt multiplies the amount by an integer quantity.
func (m Money) MulInt(n int64) (Money, error) {
	minor, ok := mul64(m.minor, n)
	if !ok {
		return Money{}, fmt.Errorf("%w: %s x %d", ErrOverflow, m, n)
	}
	return Money{minor: minor, scale: m.scale}, nil
}

// PercentOf returns p percent of m. The product is computed exactly and rounded
// once, half away from zero, to minor units.
func (m Money) PercentOf(p decimal.Decimal) Money {
	v := decimal.NewFromInt(m.minor).Mul(p).Shift(-2).Round(0)
	return Money{minor: v.IntPart(), scale: m.scale}
}

// Compare returns -1, 0 or 1 depending on whether m is less than, equal to or
// greater than o. Scales are compared exactly and never overflow.
func (m Money) Compare(o Money) int {
	if m.scale == o.scale {
		switch {
		case m.minor < o.minor:
			return -1
		case m.minor > o.minor:
			return 1
		default:
			return 0
		}
	}
	return m.Decimal().Cmp(o.Decimal())
}

// Min returns the smaller of m and o at the larger of the two scales. When the
// smaller amount cannot be expressed at that scale it is returned as is.
func (m Money) Min(o Money) Money {
	low := m
	if o.Compare(m) < 0 {
		low = o
	}
	scale := max(m.scale, o.scale)
	if out, err := low.Rescale(scale); err == nil {
		return out
	}
	return low
}

// Decimal returns the amount as an arbitrary-precision decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.minor, -int32(m.scale))
}

// String renders the amount with exactly Scale fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(int32(m.scale))
}

type wire struct {
	Amount int64 `json:"amount"`
	Scale  uint8 `json:"scale"`
}

// MarshalJSON encodes Money as integer minor units plus scale.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{Amount: m.minor, Scale: m.scale})
}

// UnmarshalJSON decodes the {"amount","scale"} shape.
func (m *Money) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	if w.Scale > MaxScale {
		return fmt.Errorf("%w: scale %d out of range", ErrParse, w.Scale)
	}
	*m = Money{minor: w.Amount, scale: w.Scale}
	return nil
}

func align(a, b Money) (Money, Money, error) {
	if a.scale == b.scale {
		return a, b, nil
	}
	var err error
	if a.scale > b.scale {
		b, err = b.Rescale(a.scale)
	} else {
		a, err = a.Rescale(b.scale)
	}
	return a, b, err
}

// mul64 returns a*b and whether it fit in an int64.
func mul64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}

func pow10(n uint8) int64 {
	out := int64(1)
	for i := uint8(0); i < n; i++ {
		out *= 10
	}
	return out
}

// Accumulator chains checked additions and subtractions, keeping the first
// error. After an error every further operation returns its left operand.
type Accumulator struct {
	err error
}

// Add returns a + b, or a once an error has been seen.
func (s *Accumulator) Add(a, b Money) Money {
	if s.err != nil {
		return a
	}
	out, err := a.Add(b)
	if err != nil {
		s.err = err
		return a
	}
	return out
}

// Sub returns a - b, or a once an error has been seen.
func (s *Accumulator) Sub(a, b Money) Money {
	if s.err != nil {
		return a
	}
	out, err := a.Sub(b)
	if err != nil {
		s.err = err
		return a
	}
	return out
}

// Err returns the first error encountered.
func (s *Accumulator) Err() error { return s.err }
