package fees

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

// Model is the fee bookkeeping of one asset.
type Model struct {
	Accrued     *big.Int
	Received    *big.Int
	Distributed *big.Int

	asset     types.AssetID
	markDirty func(types.AssetID)
}

func newModel() *Model {
	return &Model{
		Accrued:     big.NewInt(0),
		Received:    big.NewInt(0),
		Distributed: big.NewInt(0),
	}
}

func (m *Model) receive(amount *big.Int) {
	m.Accrued = new(big.Int).Add(m.Accrued, amount)
	m.Received = new(big.Int).Add(m.Received, amount)
	m.markDirty(m.asset)
}

func (m *Model) distribute() *big.Int {
	amount := m.Accrued
	m.Distributed = new(big.Int).Add(m.Distributed, amount)
	m.Accrued = big.NewInt(0)
	m.markDirty(m.asset)
	return amount
}
