package bus

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

type App interface {
	Owner() types.Address
	Params() *Params
}

// Params are the economic constants fixed at genesis.
type Params struct {
	FeeBps            uint32
	ReserveVirtual    *big.Int
	MaxSupply         *big.Int
	TileCost          *big.Int
	GridWidth         uint32
	GridHeight        uint32
	EpochDuration     uint64
	InitialEmission   *big.Int
	TailEmission      *big.Int
	DecayBps          uint32
	GridShareBps      uint32
	FeeRewardDuration uint64
}
