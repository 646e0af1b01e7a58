package bus

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

// Fees accepts skimmed fees from the curve and the grid.
type Fees interface {
	ReceiveFee(from types.Address, asset types.AssetID, amount *big.Int) error
}
