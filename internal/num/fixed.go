package num

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits used for every internal amount
// and price.
const Decimals = 18

var (
	// ErrOverflow is returned when a fixed point operation does not fit in
	// 256 bits.
	ErrOverflow = errors.New("num: overflow")
	// ErrDivisionByZero is returned by FixedDiv when the divisor is zero.
	ErrDivisionByZero = errors.New("num: division by zero")
	// ErrInvalidDecimals is returned for native scales wider than Decimals.
	ErrInvalidDecimals = errors.New("num: decimals exceed 18")
	// ErrNegative is returned when parsing a negative decimal string.
	ErrNegative = errors.New("num: negative value")
)

var (
	one = NewUint(1)
	ten = NewUint(10)
	// pow10 caches 10^0 .. 10^18.
	pow10 [Decimals + 1]*Uint
)

func init() {
	pow10[0] = NewUint(1)
	for i := 1; i <= Decimals; i++ {
		pow10[i] = Zero().Mul(pow10[i-1], ten)
	}
}

// One returns 1.0 in fixed point (10^18).
func One() *Uint {
	return pow10[Decimals].Clone()
}

// Unit returns the fixed point value of one native unit of a token with the
// given number of decimals, i.e. 10^(18-decimals).
func Unit(decimals uint8) (*Uint, error) {
	if decimals > Decimals {
		return nil, ErrInvalidDecimals
	}
	return pow10[Decimals-int(decimals)].Clone(), nil
}

// ToFixed converts a native token amount into 18-decimal fixed point.
func ToFixed(native *Uint, decimals uint8) (*Uint, error) {
	unit, err := Unit(decimals)
	if err != nil {
		return nil, err
	}
	out, overflow := Zero().MulOverflow(native, unit)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// FromFixed converts an 18-decimal fixed point value to native units,
// rounding down.
func FromFixed(fixed *Uint, decimals uint8) (*Uint, error) {
	unit, err := Unit(decimals)
	if err != nil {
		return nil, err
	}
	return Zero().Div(fixed, unit), nil
}

// FromFixedCeil converts an 18-decimal fixed point value to native units,
// rounding up.
func FromFixedCeil(fixed *Uint, decimals uint8) (*Uint, error) {
	unit, err := Unit(decimals)
	if err != nil {
		return nil, err
	}
	q := Zero().Div(fixed, unit)
	if !Zero().Mul(q, unit).EQ(fixed) {
		q.Add(q, one)
	}
	return q, nil
}

// FixedMul returns a * b in fixed point, rounding down.
func FixedMul(a, b *Uint) (*Uint, error) {
	out, overflow := Zero().MulDiv(a, b, pow10[Decimals])
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// FixedDiv returns a / b in fixed point, rounding down.
func FixedDiv(a, b *Uint) (*Uint, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := Zero().MulDiv(a, pow10[Decimals], b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Decimal renders a fixed point value as a decimal number.
func Decimal(fixed *Uint) decimal.Decimal {
	return decimal.NewFromBigInt(fixed.BigInt(), -Decimals)
}

// NativeDecimal renders a native amount as a decimal number of whole tokens.
func NativeDecimal(native *Uint, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(native.BigInt(), -int32(decimals))
}

// ParseFixed parses a decimal string such as "2.5" into fixed point. Digits
// beyond the 18th fractional place are truncated.
func ParseFixed(s string) (*Uint, error) {
	return parseScaled(s, Decimals)
}

// ParseNative parses a decimal string of whole tokens into native units for a
// token with the given decimals. Digits beyond the token's precision are
// truncated.
func ParseNative(s string, decimals uint8) (*Uint, error) {
	if decimals > Decimals {
		return nil, ErrInvalidDecimals
	}
	return parseScaled(s, int32(decimals))
}

func parseScaled(s string, places int32) (*Uint, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("num: parse %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, ErrNegative
	}
	u, overflow := UintFromBig(d.Shift(places).BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return u, nil
}
