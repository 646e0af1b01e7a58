// Package fixed implements checked unsigned 256-bit arithmetic and the
// 18-decimal fixed point helpers used by pricing and reward accounting.
//
// Values are carried as *big.Int so they can be stored and encoded like any
// other amount, but every result is bounded to [0, 2^256). Division helpers
// carry their rounding direction in the name: plain names floor, Up variants
// take the ceiling.
package fixed

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("uint256 overflow")
	ErrUnderflow      = errors.New("uint256 underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// One is 1.0 in 18-decimal fixed point.
var One = big.NewInt(1e18)

// MaxBps is 100% in basis points.
const MaxBps = 10000

// Zero returns a fresh zero value.
func Zero() *big.Int {
	return big.NewInt(0)
}

func toU256(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return uint256.NewInt(0), nil
	}
	if x.Sign() < 0 {
		return nil, ErrUnderflow
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

func fromBig(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, ErrUnderflow
	}
	if x.BitLen() > 256 {
		return nil, ErrOverflow
	}
	return x, nil
}

// Check verifies that x fits the 256-bit unsigned range.
func Check(x *big.Int) error {
	_, err := toU256(x)
	return err
}

// Add returns x + y.
func Add(x, y *big.Int) (*big.Int, error) {
	a, err := toU256(x)
	if err != nil {
		return nil, err
	}
	b, err := toU256(y)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z.ToBig(), nil
}

// Sub returns x - y, failing when y > x.
func Sub(x, y *big.Int) (*big.Int, error) {
	a, err := toU256(x)
	if err != nil {
		return nil, err
	}
	b, err := toU256(y)
	if err != nil {
		return nil, err
	}
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrUnderflow
	}
	return z.ToBig(), nil
}

// Mul returns x * y.
func Mul(x, y *big.Int) (*big.Int, error) {
	a, err := toU256(x)
	if err != nil {
		return nil, err
	}
	b, err := toU256(y)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z.ToBig(), nil
}

// Div returns floor(x / y).
func Div(x, y *big.Int) (*big.Int, error) {
	a, err := toU256(x)
	if err != nil {
		return nil, err
	}
	b, err := toU256(y)
	if err != nil {
		return nil, err
	}
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b).ToBig(), nil
}

// DivUp returns ceil(x / y).
func DivUp(x, y *big.Int) (*big.Int, error) {
	a, err := toU256(x)
	if err != nil {
		return nil, err
	}
	b, err := toU256(y)
	if err != nil {
		return nil, err
	}
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	q := new(uint256.Int).Div(a, b)
	if !new(uint256.Int).Mod(a, b).IsZero() {
		q.AddUint64(q, 1)
	}
	return q.ToBig(), nil
}

// MulDiv returns floor(x * y / d). The product may exceed 256 bits, only
// the quotient has to fit.
func MulDiv(x, y, d *big.Int) (*big.Int, error) {
	q, _, err := mulDivMod(x, y, d)
	return q, err
}

// MulDivUp returns ceil(x * y / d).
func MulDivUp(x, y, d *big.Int) (*big.Int, error) {
	q, r, err := mulDivMod(x, y, d)
	if err != nil {
		return nil, err
	}
	if r.Sign() != 0 {
		return Add(q, big.NewInt(1))
	}
	return q, nil
}

func mulDivMod(x, y, d *big.Int) (*big.Int, *big.Int, error) {
	for _, v := range []*big.Int{x, y, d} {
		if err := Check(v); err != nil {
			return nil, nil, err
		}
	}
	if d == nil || d.Sign() == 0 {
		return nil, nil, ErrDivisionByZero
	}
	p := new(big.Int).Mul(orZero(x), orZero(y))
	q, r := new(big.Int).QuoRem(p, d, new(big.Int))
	q, err := fromBig(q)
	if err != nil {
		return nil, nil, err
	}
	return q, r, nil
}

// MulWad returns floor(x * y / 1e18).
func MulWad(x, y *big.Int) (*big.Int, error) {
	return MulDiv(x, y, One)
}

// DivWad returns floor(x * 1e18 / y).
func DivWad(x, y *big.Int) (*big.Int, error) {
	return MulDiv(x, One, y)
}

// Bps returns floor(x * bps / 10000).
func Bps(x *big.Int, bps uint32) (*big.Int, error) {
	return MulDiv(x, big.NewInt(int64(bps)), big.NewInt(MaxBps))
}

// Min returns the smaller of x and y.
func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// Max returns the bigger of x and y.
func Max(x, y *big.Int) *big.Int {
	if x.Cmp(y) >= 0 {
		return x
	}
	return y
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return Zero()
	}
	return x
}
