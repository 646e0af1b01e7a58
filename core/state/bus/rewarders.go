package bus

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

// Rewarders is the reward distribution engine as seen by the modules that
// own weights or fund pools.
type Rewarders interface {
	NotifyReward(id types.RewarderID, funder types.Address, asset types.AssetID, amount *big.Int, duration, now uint64) error
	SetWeight(id types.RewarderID, account types.Address, weight *big.Int, now uint64) error
	GetWeight(id types.RewarderID, account types.Address) *big.Int
	RewardRate(id types.RewarderID, asset types.AssetID, now uint64) *big.Int
	CheckNotify(id types.RewarderID, asset types.AssetID, amount *big.Int, duration, now uint64) error
}
