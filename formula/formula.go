package formula

import (
	"errors"
	"math/big"

	"github.com/tilemint/tilemint-node/fixed"
)

// ErrSupplyExhausted is returned when an amount would take the whole
// remaining token reserve of the curve.
var ErrSupplyExhausted = errors.New("curve supply exhausted")

// Curve is a constant-product bonding curve over a virtual base reserve:
//
//	(virtual + reserve) * (maxSupply - supply) >= virtual * maxSupply
//
// The left side never drops below k because every ceiling is taken on the
// side that keeps assets in the curve.
type Curve struct {
	Supply    *big.Int
	Reserve   *big.Int
	Virtual   *big.Int
	MaxSupply *big.Int
}

// K = virtual * maxSupply
func (c Curve) K() (*big.Int, error) {
	return fixed.Mul(c.Virtual, c.MaxSupply)
}

// ReserveBase = virtual + reserve
func (c Curve) ReserveBase() (*big.Int, error) {
	return fixed.Add(c.Virtual, c.Reserve)
}

// ReserveToken = maxSupply - supply
func (c Curve) ReserveToken() (*big.Int, error) {
	return fixed.Sub(c.MaxSupply, c.Supply)
}

func (c Curve) reserves() (k, base, token *big.Int, err error) {
	if k, err = c.K(); err != nil {
		return
	}
	if base, err = c.ReserveBase(); err != nil {
		return
	}
	token, err = c.ReserveToken()
	return
}

// Return = reserveToken - ceil(k / (reserveBase + deposit))
func CalculatePurchaseReturn(c Curve, deposit *big.Int) (*big.Int, error) {
	if deposit.Sign() == 0 {
		return big.NewInt(0), nil
	}

	k, base, token, err := c.reserves()
	if err != nil {
		return nil, err
	}

	newBase, err := fixed.Add(base, deposit)
	if err != nil {
		return nil, err
	}
	newToken, err := fixed.DivUp(k, newBase) // ceil(k / (reserveBase + deposit))
	if err != nil {
		return nil, err
	}
	if newToken.Cmp(token) >= 0 {
		return big.NewInt(0), nil
	}

	return fixed.Sub(token, newToken)
}

// reversed function CalculatePurchaseReturn
// deposit = ceil(k / (reserveToken - wantReceive)) - reserveBase
func CalculatePurchaseAmount(c Curve, wantReceive *big.Int) (*big.Int, error) {
	k, base, token, err := c.reserves()
	if err != nil {
		return nil, err
	}

	if wantReceive.Cmp(token) >= 0 {
		return nil, ErrSupplyExhausted
	}

	newToken, err := fixed.Sub(token, wantReceive)
	if err != nil {
		return nil, err
	}
	newBase, err := fixed.DivUp(k, newToken)
	if err != nil {
		return nil, err
	}
	if newBase.Cmp(base) <= 0 {
		return big.NewInt(0), nil
	}

	return fixed.Sub(newBase, base)
}

// Return = reserveBase - ceil(k / (reserveToken + sellAmount))
func CalculateSaleReturn(c Curve, sellAmount *big.Int) (*big.Int, error) {
	if sellAmount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if sellAmount.Cmp(c.Supply) > 0 {
		return nil, ErrSupplyExhausted
	}

	k, base, token, err := c.reserves()
	if err != nil {
		return nil, err
	}

	newToken, err := fixed.Add(token, sellAmount)
	if err != nil {
		return nil, err
	}
	newBase, err := fixed.DivUp(k, newToken) // ceil(k / (reserveToken + sellAmount))
	if err != nil {
		return nil, err
	}
	if newBase.Cmp(base) >= 0 {
		return big.NewInt(0), nil
	}

	ret, err := fixed.Sub(base, newBase)
	if err != nil {
		return nil, err
	}

	// reserve can never go negative, whatever rounding did above
	return fixed.Min(ret, c.Reserve), nil
}

// Price = reserveBase * 1e18 / reserveToken
func SpotPrice(c Curve) (*big.Int, error) {
	_, base, token, err := c.reserves()
	if err != nil {
		return nil, err
	}

	return fixed.DivWad(base, token)
}

// Floor = virtual * 1e18 / maxSupply, the price of the first token
func FloorPrice(c Curve) (*big.Int, error) {
	return fixed.DivWad(c.Virtual, c.MaxSupply)
}

// MarketCap = supply * price / 1e18
func MarketCap(c Curve) (*big.Int, error) {
	price, err := SpotPrice(c)
	if err != nil {
		return nil, err
	}

	return fixed.MulWad(c.Supply, price)
}

// GrossUp returns the smallest input that still leaves net after a fee of
// feeBps basis points: ceil(net * 10000 / (10000 - feeBps)).
func GrossUp(net *big.Int, feeBps uint32) (*big.Int, error) {
	if feeBps >= fixed.MaxBps {
		return nil, fixed.ErrDivisionByZero
	}

	return fixed.MulDivUp(net, big.NewInt(fixed.MaxBps), big.NewInt(int64(fixed.MaxBps-feeBps)))
}
