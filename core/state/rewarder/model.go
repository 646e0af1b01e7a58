package rewarder

import (
	"math/big"
	"sort"

	"github.com/tilemint/tilemint-node/core/types"
)

// Pool is the linear release schedule of one reward asset.
type Pool struct {
	Rate            *big.Int
	PeriodFinish    uint64
	LastUpdate      uint64
	RewardPerWeight *big.Int
	Balance         *big.Int
	Unallocated     *big.Int
	Notified        *big.Int
	Claimed         *big.Int
}

func newPool() *Pool {
	return &Pool{
		Rate:            big.NewInt(0),
		RewardPerWeight: big.NewInt(0),
		Balance:         big.NewInt(0),
		Unallocated:     big.NewInt(0),
		Notified:        big.NewInt(0),
		Claimed:         big.NewInt(0),
	}
}

func (p *Pool) copy() *Pool {
	c := *p
	return &c
}

// Reward is what an account has settled for one asset.
type Reward struct {
	Asset   types.AssetID
	Paid    *big.Int
	Pending *big.Int
}

// Position is the stake of one account in one rewarder.
type Position struct {
	Weight  *big.Int
	Rewards []*Reward
}

func newPosition() *Position {
	return &Position{Weight: big.NewInt(0)}
}

func (p *Position) reward(asset types.AssetID) *Reward {
	for _, r := range p.Rewards {
		if r.Asset == asset {
			return r
		}
	}

	r := &Reward{Asset: asset, Paid: big.NewInt(0), Pending: big.NewInt(0)}
	p.Rewards = append(p.Rewards, r)
	sort.SliceStable(p.Rewards, func(i, j int) bool {
		return p.Rewards[i].Asset < p.Rewards[j].Asset
	})
	return r
}

func (p *Position) isEmpty() bool {
	if p.Weight.Sign() != 0 {
		return false
	}
	for _, r := range p.Rewards {
		if r.Pending.Sign() != 0 {
			return false
		}
	}
	return true
}

// Model is one reward distributor instance.
type Model struct {
	TotalWeight *big.Int

	id        types.RewarderID
	pools     map[types.AssetID]*Pool
	positions map[types.Address]*Position

	dirtyPools     map[types.AssetID]struct{}
	dirtyPositions map[types.Address]struct{}
	isDirty        bool
}

func newModel(id types.RewarderID) *Model {
	return &Model{
		TotalWeight:    big.NewInt(0),
		id:             id,
		pools:          map[types.AssetID]*Pool{},
		positions:      map[types.Address]*Position{},
		dirtyPools:     map[types.AssetID]struct{}{},
		dirtyPositions: map[types.Address]struct{}{},
	}
}

func (m *Model) setTotalWeight(weight *big.Int) {
	m.TotalWeight = weight
	m.isDirty = true
}

func (m *Model) setPool(asset types.AssetID, pool *Pool) {
	m.pools[asset] = pool
	m.dirtyPools[asset] = struct{}{}
}

func (m *Model) setPosition(account types.Address, position *Position) {
	m.positions[account] = position
	m.dirtyPositions[account] = struct{}{}
}

// RewardAssets lists the assets a rewarder pays out.
func RewardAssets(id types.RewarderID) []types.AssetID {
	switch id {
	case types.RewarderTokenStaking:
		return []types.AssetID{types.AssetBase, types.AssetToken, types.AssetOption}
	case types.RewarderGridPlacement:
		return []types.AssetID{types.AssetOption}
	}
	return nil
}

func isRewardAsset(id types.RewarderID, asset types.AssetID) bool {
	for _, a := range RewardAssets(id) {
		if a == asset {
			return true
		}
	}
	return false
}
