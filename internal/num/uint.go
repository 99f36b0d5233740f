// Package num provides the unsigned 256-bit integer used for every balance,
// price and order amount in the engine, together with the 18-decimal fixed
// point helpers built on top of it.
package num

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/holiman/uint256"
)

// Uint is a wrapper for a 256-bit unsigned integer.
type Uint struct {
	u uint256.Int
}

// NewUint creates a new Uint with the value of the uint64 passed as a
// parameter.
func NewUint(val uint64) *Uint {
	return &Uint{*uint256.NewInt(val)}
}

// Zero returns a new Uint set to 0.
func Zero() *Uint {
	return NewUint(0)
}

// UintFromBig constructs a new Uint from a big.Int. It returns true if the
// value does not fit in 256 bits or is negative.
func UintFromBig(b *big.Int) (*Uint, bool) {
	if b.Sign() < 0 {
		return Zero(), true
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return Zero(), true
	}
	return &Uint{*u}, false
}

// UintFromString parses a base 10 string.
func UintFromString(s string) (*Uint, error) {
	u := new(uint256.Int)
	if err := u.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("num: parse %q: %w", s, err)
	}
	return &Uint{*u}, nil
}

// MustUint parses a base 10 string and panics on failure. Intended for
// constants and tests.
func MustUint(s string) *Uint {
	u, err := UintFromString(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Min returns the smallest of the 2 numbers.
func Min(a, b *Uint) *Uint {
	if a.LT(b) {
		return a
	}
	return b
}

// Clone returns a deep copy of u.
func (u *Uint) Clone() *Uint {
	return &Uint{u.u}
}

// Set copies oth into z.
func (z *Uint) Set(oth *Uint) *Uint {
	z.u.Set(&oth.u)
	return z
}

// Add stores x + y into z and returns z.
func (z *Uint) Add(x, y *Uint) *Uint {
	z.u.Add(&x.u, &y.u)
	return z
}

// AddOverflow stores x + y into z. The boolean is true when the addition
// wrapped around.
func (z *Uint) AddOverflow(x, y *Uint) (*Uint, bool) {
	_, overflow := z.u.AddOverflow(&x.u, &y.u)
	return z, overflow
}

// Sub stores x - y into z and returns z. The caller must ensure x >= y.
func (z *Uint) Sub(x, y *Uint) *Uint {
	z.u.Sub(&x.u, &y.u)
	return z
}

// SubOverflow stores x - y into z. The boolean is true when y > x.
func (z *Uint) SubOverflow(x, y *Uint) (*Uint, bool) {
	_, underflow := z.u.SubOverflow(&x.u, &y.u)
	return z, underflow
}

// Mul stores x * y into z and returns z.
func (z *Uint) Mul(x, y *Uint) *Uint {
	z.u.Mul(&x.u, &y.u)
	return z
}

// MulOverflow stores x * y into z. The boolean is true on overflow.
func (z *Uint) MulOverflow(x, y *Uint) (*Uint, bool) {
	_, overflow := z.u.MulOverflow(&x.u, &y.u)
	return z, overflow
}

// Div stores x / y (floor) into z and returns z. Division by zero yields 0.
func (z *Uint) Div(x, y *Uint) *Uint {
	z.u.Div(&x.u, &y.u)
	return z
}

// MulDiv stores floor(x * y / d) into z using a 512-bit intermediate. The
// boolean is true when the result does not fit in 256 bits or d is zero.
func (z *Uint) MulDiv(x, y, d *Uint) (*Uint, bool) {
	if d.IsZero() {
		return z.SetUint64(0), true
	}
	_, overflow := z.u.MulDivOverflow(&x.u, &y.u, &d.u)
	return z, overflow
}

// SetUint64 sets z to val.
func (z *Uint) SetUint64(val uint64) *Uint {
	z.u.SetUint64(val)
	return z
}

// Uint64 returns the low 64 bits of u.
func (u *Uint) Uint64() uint64 {
	return u.u.Uint64()
}

// BigInt returns u as a new big.Int.
func (u *Uint) BigInt() *big.Int {
	return u.u.ToBig()
}

// IsZero reports whether u == 0.
func (u *Uint) IsZero() bool {
	return u.u.IsZero()
}

// LT reports whether u < oth.
func (u *Uint) LT(oth *Uint) bool {
	return u.u.Lt(&oth.u)
}

// LTE reports whether u <= oth.
func (u *Uint) LTE(oth *Uint) bool {
	return !u.u.Gt(&oth.u)
}

// GT reports whether u > oth.
func (u *Uint) GT(oth *Uint) bool {
	return u.u.Gt(&oth.u)
}

// GTE reports whether u >= oth.
func (u *Uint) GTE(oth *Uint) bool {
	return !u.u.Lt(&oth.u)
}

// EQ reports whether u == oth.
func (u *Uint) EQ(oth *Uint) bool {
	return u.u.Eq(&oth.u)
}

// String returns the base 10 representation of u.
func (u *Uint) String() string {
	return u.u.Dec()
}

// MarshalJSON encodes u as a quoted base 10 string so that values above
// 2^53 survive JSON consumers.
func (u *Uint) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(u.u.Dec())), nil
}

// UnmarshalJSON accepts either a quoted or a bare base 10 integer.
func (u *Uint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	if err := u.u.SetFromDecimal(s); err != nil {
		return fmt.Errorf("num: unmarshal %q: %w", s, err)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler (used by TOML and map keys).
func (u *Uint) MarshalText() ([]byte, error) {
	return []byte(u.u.Dec()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Uint) UnmarshalText(text []byte) error {
	if err := u.u.SetFromDecimal(string(text)); err != nil {
		return fmt.Errorf("num: unmarshal %q: %w", string(text), err)
	}
	return nil
}
