package token

import (
	"math/big"
)

// Model is the curve state. Price is a function of TotalSupply alone.
//
// TOKEN minted by exercising OTOKEN sits outside the curve: Exercised counts
// it and FloorReserve holds the BASE paid for it at the floor price. Debt is
// BASE lent out of the reserve account against staked TOKEN.
type Model struct {
	TotalSupply *big.Int
	ReserveReal *big.Int
	TotalStaked *big.Int

	Exercised    *big.Int
	FloorReserve *big.Int
	TotalDebt    *big.Int

	markDirty func()
}

func newModel() *Model {
	return &Model{
		TotalSupply:  big.NewInt(0),
		ReserveReal:  big.NewInt(0),
		TotalStaked:  big.NewInt(0),
		Exercised:    big.NewInt(0),
		FloorReserve: big.NewInt(0),
		TotalDebt:    big.NewInt(0),
	}
}

func (m *Model) mint(tokens, reserve *big.Int) {
	m.TotalSupply = new(big.Int).Add(m.TotalSupply, tokens)
	m.ReserveReal = new(big.Int).Add(m.ReserveReal, reserve)
	m.markDirty()
}

func (m *Model) burn(tokens, reserve *big.Int) {
	m.TotalSupply = new(big.Int).Sub(m.TotalSupply, tokens)
	m.ReserveReal = new(big.Int).Sub(m.ReserveReal, reserve)
	m.markDirty()
}

func (m *Model) exercise(tokens, base *big.Int) {
	m.Exercised = new(big.Int).Add(m.Exercised, tokens)
	m.FloorReserve = new(big.Int).Add(m.FloorReserve, base)
	m.markDirty()
}

func (m *Model) redeem(tokens, base *big.Int) {
	m.Exercised = new(big.Int).Sub(m.Exercised, tokens)
	m.FloorReserve = new(big.Int).Sub(m.FloorReserve, base)
	m.markDirty()
}

func (m *Model) setTotalStaked(staked *big.Int) {
	m.TotalStaked = staked
	m.markDirty()
}

func (m *Model) setTotalDebt(debt *big.Int) {
	m.TotalDebt = debt
	m.markDirty()
}

// Circulating is all TOKEN in existence, curve and exercised.
func (m *Model) circulating() *big.Int {
	return new(big.Int).Add(m.TotalSupply, m.Exercised)
}
