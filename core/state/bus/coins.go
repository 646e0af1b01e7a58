package bus

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

// Coins tracks the circulating volume of each asset. Minting credits the
// receiver, burning debits the holder.
type Coins interface {
	GetVolume(types.AssetID) *big.Int
	Mint(to types.Address, asset types.AssetID, amount *big.Int) error
	Burn(from types.Address, asset types.AssetID, amount *big.Int) error
}
