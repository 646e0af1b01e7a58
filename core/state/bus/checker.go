package bus

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

type Checker interface {
	AddBalance(types.AssetID, *big.Int)
	AddVolume(types.AssetID, *big.Int)
}

type noopChecker struct{}

func (noopChecker) AddBalance(types.AssetID, *big.Int) {}
func (noopChecker) AddVolume(types.AssetID, *big.Int)  {}
