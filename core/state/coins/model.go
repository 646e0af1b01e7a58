package coins

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

type Model struct {
	Volume *big.Int

	asset     types.AssetID
	markDirty func(types.AssetID)
}

func (m *Model) addVolume(amount *big.Int) {
	m.Volume = new(big.Int).Add(m.Volume, amount)
	m.markDirty(m.asset)
}

func (m *Model) subVolume(amount *big.Int) {
	m.Volume = new(big.Int).Sub(m.Volume, amount)
	m.markDirty(m.asset)
}

func (m *Model) setVolume(volume *big.Int) {
	m.Volume = new(big.Int).Set(volume)
	m.markDirty(m.asset)
}
