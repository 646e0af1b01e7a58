package bus

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

type Accounts interface {
	GetBalance(types.Address, types.AssetID) *big.Int
	AddBalance(types.Address, types.AssetID, *big.Int)
	SubBalance(types.Address, types.AssetID, *big.Int) error
	Transfer(from, to types.Address, asset types.AssetID, amount *big.Int) error
	GetAllowance(owner, spender types.Address, asset types.AssetID) *big.Int
	SpendAllowance(owner, spender types.Address, asset types.AssetID, amount *big.Int) error
}
