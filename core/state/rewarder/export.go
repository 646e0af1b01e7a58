package rewarder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
)

// Import loads rewarders from a genesis state. Balances of the rewarder
// accounts are imported with the accounts module. The pending rewards of an
// asset must be covered by its pool.
func (r *Rewarders) Import(state *types.AppState) error {
	seen := map[types.RewarderID]struct{}{}
	for _, rewarder := range state.Rewarders {
		if err := checkRewarder(rewarder.ID); err != nil {
			return err
		}
		if _, ok := seen[rewarder.ID]; ok {
			return errors.Errorf("duplicate rewarder %s", rewarder.ID)
		}
		seen[rewarder.ID] = struct{}{}

		r.setTotalWeight(rewarder.ID, helpers.StringToBigIntOrZero(rewarder.TotalWeight))

		balances := map[types.AssetID]*big.Int{}
		for _, p := range rewarder.Pools {
			if !isRewardAsset(rewarder.ID, p.Asset) {
				return errors.Wrapf(code.ErrUnknownAsset, "%s is not a reward asset of rewarder %s", p.Asset.Symbol(), rewarder.ID)
			}
			pool := newPool()
			pool.Rate = helpers.StringToBigIntOrZero(p.Rate)
			pool.PeriodFinish = p.PeriodFinish
			pool.LastUpdate = p.LastUpdate
			pool.RewardPerWeight = helpers.StringToBigIntOrZero(p.RewardPerWeight)
			pool.Balance = helpers.StringToBigIntOrZero(p.Balance)
			pool.Unallocated = helpers.StringToBigIntOrZero(p.Unallocated)
			pool.Notified = new(big.Int).Set(pool.Balance)
			r.setPool(rewarder.ID, p.Asset, pool)
			balances[p.Asset] = pool.Balance
		}

		pending := map[types.AssetID]*big.Int{}
		for _, p := range rewarder.Positions {
			position := newPosition()
			position.Weight = helpers.StringToBigIntOrZero(p.Weight)
			for _, rw := range p.Rewards {
				reward := position.reward(rw.Asset)
				reward.Paid = helpers.StringToBigIntOrZero(rw.Paid)
				reward.Pending = helpers.StringToBigIntOrZero(rw.Pending)

				if pending[rw.Asset] == nil {
					pending[rw.Asset] = big.NewInt(0)
				}
				pending[rw.Asset].Add(pending[rw.Asset], reward.Pending)
			}
			r.setPosition(rewarder.ID, p.Account, position)
		}

		for asset, owed := range pending {
			balance := balances[asset]
			if balance == nil {
				balance = big.NewInt(0)
			}
			if owed.Cmp(balance) > 0 {
				return errors.Wrapf(code.ErrInsufficientPoolBalance, "rewarder %s owes %s %s, holds %s", rewarder.ID, owed, asset.Symbol(), balance)
			}
		}
	}

	return nil
}

// Export appends every rewarder with its pools and positions to state.
func (r *Rewarders) Export(state *types.AppState) {
	for _, id := range types.Rewarders() {
		m := r.get(id)
		rewarder := types.Rewarder{
			ID:          id,
			TotalWeight: m.TotalWeight.String(),
		}

		for _, asset := range RewardAssets(id) {
			pool := r.pool(id, asset)
			rewarder.Pools = append(rewarder.Pools, types.RewardPool{
				Asset:           asset,
				Rate:            pool.Rate.String(),
				PeriodFinish:    pool.PeriodFinish,
				LastUpdate:      pool.LastUpdate,
				RewardPerWeight: pool.RewardPerWeight.String(),
				Balance:         pool.Balance.String(),
				Unallocated:     pool.Unallocated.String(),
			})
		}

		prefix := append(modelPath(id), positionPrefix)
		end := append(modelPath(id), positionPrefix+1)
		r.immutableTree().IterateRange(prefix, end, true, func(key []byte, value []byte) bool {
			account := types.BytesToAddress(key[len(prefix):])
			if _, ok := m.positions[account]; !ok {
				position := newPosition()
				if err := rlp.DecodeBytes(value, position); err != nil {
					panic(fmt.Sprintf("failed to decode position %s/%s: %s", id, account, err))
				}
				m.positions[account] = position
			}
			return false
		})

		accounts := map[types.Address]struct{}{}
		for account := range m.positions {
			accounts[account] = struct{}{}
		}
		for _, account := range sortedAccounts(accounts) {
			position := m.positions[account]
			if position.isEmpty() {
				continue
			}
			exported := types.RewardPosition{Account: account, Weight: position.Weight.String()}
			for _, reward := range position.Rewards {
				exported.Rewards = append(exported.Rewards, types.PositionReward{
					Asset:   reward.Asset,
					Paid:    reward.Paid.String(),
					Pending: reward.Pending.String(),
				})
			}
			rewarder.Positions = append(rewarder.Positions, exported)
		}

		state.Rewarders = append(state.Rewarders, rewarder)
	}
}
