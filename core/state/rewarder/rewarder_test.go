package rewarder

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state/accounts"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
	"github.com/tilemint/tilemint-node/tree"
)

var (
	funder = types.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice  = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
	bob    = types.HexToAddress("0x18467bbb64a8edf890201d526c35957d82be3d95")
)

func wei(units int64) *big.Int {
	return helpers.ToWei(big.NewInt(units))
}

func newTestRewarders(t *testing.T) (*Rewarders, *accounts.Accounts, tree.MTree) {
	t.Helper()

	b := bus.NewBus()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)

	acc := accounts.NewAccounts(b, mutableTree.GetLastImmutable())
	acc.SetBalance(funder, types.AssetBase, wei(1000000))
	acc.SetBalance(funder, types.AssetOption, wei(1000000))

	return NewRewarders(b, mutableTree.GetLastImmutable()), acc, mutableTree
}

func TestRewarders_SingleStakerEarnsLinearly(t *testing.T) {
	t.Parallel()
	r, acc, _ := newTestRewarders(t)
	id := types.RewarderTokenStaking

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(100), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetBase, wei(1000), 1000, 0))

	require.Equal(t, wei(1000).String(), acc.GetBalance(id.Address(), types.AssetBase).String())

	earned, err := r.Earned(id, alice, types.AssetBase, 500)
	require.NoError(t, err)
	require.Equal(t, wei(500).String(), earned.String())

	earned, err = r.Earned(id, alice, types.AssetBase, 1000)
	require.NoError(t, err)
	require.Equal(t, wei(1000).String(), earned.String())

	// nothing is released after the period ends
	earned, err = r.Earned(id, alice, types.AssetBase, 5000)
	require.NoError(t, err)
	require.Equal(t, wei(1000).String(), earned.String())

	claimed, err := r.Claim(id, alice, types.AssetBase, 1000)
	require.NoError(t, err)
	require.Equal(t, wei(1000).String(), claimed.String())
	require.Equal(t, wei(1000).String(), acc.GetBalance(alice, types.AssetBase).String())

	pool := r.GetPool(id, types.AssetBase)
	require.Equal(t, 0, pool.Balance.Sign())
	require.Equal(t, wei(1000).String(), pool.Claimed.String())

	claimed, err = r.Claim(id, alice, types.AssetBase, 1000)
	require.NoError(t, err)
	require.Equal(t, 0, claimed.Sign())
}

func TestRewarders_WeightChangeMidPeriod(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRewarders(t)
	id := types.RewarderGridPlacement

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(100), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetOption, wei(1000), 1000, 0))
	require.NoError(t, r.SetWeight(id, bob, big.NewInt(100), 500))
	require.Equal(t, "200", r.GetTotalWeight(id).String())

	aliceEarned, err := r.Earned(id, alice, types.AssetOption, 1000)
	require.NoError(t, err)
	bobEarned, err := r.Earned(id, bob, types.AssetOption, 1000)
	require.NoError(t, err)

	require.Equal(t, wei(750).String(), aliceEarned.String())
	require.Equal(t, wei(250).String(), bobEarned.String())
}

func TestRewarders_ProportionalSplit(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRewarders(t)
	id := types.RewarderTokenStaking

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(100), 0))
	require.NoError(t, r.SetWeight(id, bob, big.NewInt(300), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetOption, wei(1000), 1000, 0))

	aliceEarned, err := r.Earned(id, alice, types.AssetOption, 1000)
	require.NoError(t, err)
	bobEarned, err := r.Earned(id, bob, types.AssetOption, 1000)
	require.NoError(t, err)

	require.Equal(t, wei(250).String(), aliceEarned.String())
	require.Equal(t, wei(750).String(), bobEarned.String())
}

func TestRewarders_ZeroWeightAccrualIsRetained(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRewarders(t)
	id := types.RewarderGridPlacement

	require.NoError(t, r.NotifyReward(id, funder, types.AssetOption, wei(1000), 1000, 0))
	require.NoError(t, r.SetWeight(id, alice, big.NewInt(100), 500))

	pool := r.GetPool(id, types.AssetOption)
	require.Equal(t, wei(500).String(), pool.Unallocated.String())

	earned, err := r.Earned(id, alice, types.AssetOption, 1000)
	require.NoError(t, err)
	require.Equal(t, wei(500).String(), earned.String())

	require.NoError(t, r.NotifyReward(id, funder, types.AssetOption, wei(1000), 1000, 1000))
	pool = r.GetPool(id, types.AssetOption)
	require.Equal(t, 0, pool.Unallocated.Sign())
	require.Equal(t, "1500000000000000000", pool.Rate.String())

	earned, err = r.Earned(id, alice, types.AssetOption, 2000)
	require.NoError(t, err)
	require.Equal(t, wei(2000).String(), earned.String())
}

func TestRewarders_NotifyExtendsRunningPeriod(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRewarders(t)
	id := types.RewarderTokenStaking

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(1), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetBase, wei(1000), 1000, 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetBase, wei(500), 1000, 500))

	pool := r.GetPool(id, types.AssetBase)
	require.Equal(t, uint64(1500), pool.PeriodFinish)
	require.Equal(t, wei(1).String(), pool.Rate.String())

	earned, err := r.Earned(id, alice, types.AssetBase, 1500)
	require.NoError(t, err)
	require.Equal(t, wei(1500).String(), earned.String())
}

func TestRewarders_SettleIsIdempotent(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRewarders(t)
	id := types.RewarderTokenStaking

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(7), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetBase, wei(1000), 1000, 0))

	require.NoError(t, r.Settle(id, types.AssetBase, 333))
	first := r.GetPool(id, types.AssetBase)
	require.NoError(t, r.Settle(id, types.AssetBase, 333))
	second := r.GetPool(id, types.AssetBase)

	require.Equal(t, first.RewardPerWeight.String(), second.RewardPerWeight.String())
	require.Equal(t, first.LastUpdate, second.LastUpdate)

	require.NoError(t, r.Checkpoint(id, alice, 333))
	e1, err := r.Earned(id, alice, types.AssetBase, 333)
	require.NoError(t, err)
	require.NoError(t, r.Checkpoint(id, alice, 333))
	e2, err := r.Earned(id, alice, types.AssetBase, 333)
	require.NoError(t, err)
	require.Equal(t, e1.String(), e2.String())
}

func TestRewarders_PaidNeverExceedsNotified(t *testing.T) {
	t.Parallel()
	r, acc, _ := newTestRewarders(t)
	id := types.RewarderTokenStaking
	acc.SetBalance(funder, types.AssetToken, big.NewInt(1000003))

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(3), 0))
	require.NoError(t, r.SetWeight(id, bob, big.NewInt(7), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetToken, big.NewInt(1000003), 997, 0))

	total := big.NewInt(0)
	for _, now := range []uint64{13, 400, 401, 997} {
		for _, account := range []types.Address{alice, bob} {
			claimed, err := r.Claim(id, account, types.AssetToken, now)
			require.NoError(t, err)
			total.Add(total, claimed)
		}
	}

	require.True(t, total.Cmp(big.NewInt(1000003)) <= 0, total.String())
	pool := r.GetPool(id, types.AssetToken)
	require.Equal(t, new(big.Int).Sub(big.NewInt(1000003), total).String(), pool.Balance.String())
}

func TestRewarders_NotifyValidation(t *testing.T) {
	t.Parallel()
	r, acc, _ := newTestRewarders(t)

	err := r.NotifyReward(types.RewarderTokenStaking, funder, types.AssetBase, wei(1), 0, 0)
	require.ErrorIs(t, err, code.ErrInvalidDuration)

	err = r.NotifyReward(types.RewarderGridPlacement, funder, types.AssetBase, wei(1), 100, 0)
	require.ErrorIs(t, err, code.ErrUnknownAsset)

	err = r.NotifyReward(types.RewarderTokenStaking, funder, types.AssetBase, big.NewInt(999), 1000, 0)
	require.ErrorIs(t, err, code.ErrRewardTooSmall)

	err = r.NotifyReward(types.RewarderTokenStaking, alice, types.AssetBase, wei(1), 100, 0)
	require.ErrorIs(t, err, code.ErrInsufficientBalance)

	err = r.NotifyReward(types.RewarderID(9), funder, types.AssetBase, wei(1), 100, 0)
	require.ErrorIs(t, err, code.ErrUnknownRewarder)

	require.Equal(t, 0, acc.GetBalance(types.RewarderTokenStaking.Address(), types.AssetBase).Sign())
	require.Equal(t, 0, r.GetPool(types.RewarderTokenStaking, types.AssetBase).Rate.Sign())
}

func TestRewarders_ClaimMoreThanPoolHoldsIsInvariant(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRewarders(t)
	id := types.RewarderGridPlacement

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(1), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetOption, wei(10), 10, 0))

	pool := r.GetPool(id, types.AssetOption)
	pool.Balance = wei(1)
	r.setPool(id, types.AssetOption, &pool)

	_, err := r.Claim(id, alice, types.AssetOption, 10)
	require.ErrorIs(t, err, code.ErrInsufficientPoolBalance)
	require.True(t, code.IsInvariant(err))
}

func TestRewarders_CommitAndReload(t *testing.T) {
	t.Parallel()
	r, acc, mutableTree := newTestRewarders(t)
	id := types.RewarderTokenStaking

	require.NoError(t, r.SetWeight(id, alice, big.NewInt(100), 0))
	require.NoError(t, r.NotifyReward(id, funder, types.AssetBase, wei(1000), 1000, 0))
	require.NoError(t, r.Checkpoint(id, alice, 400))

	_, _, err := mutableTree.Commit(acc, r)
	require.NoError(t, err)

	reloaded := NewRewarders(bus.NewBus(), mutableTree.GetLastImmutable())
	require.Equal(t, "100", reloaded.GetWeight(id, alice).String())
	require.Equal(t, "100", reloaded.GetTotalWeight(id).String())

	earned, err := reloaded.Earned(id, alice, types.AssetBase, 1000)
	require.NoError(t, err)
	require.Equal(t, wei(1000).String(), earned.String())

	state := &types.AppState{}
	reloaded.Export(state)
	require.Len(t, state.Rewarders, len(types.Rewarders()))
	require.Equal(t, id, state.Rewarders[0].ID)
	require.Len(t, state.Rewarders[0].Positions, 1)
	require.Equal(t, alice, state.Rewarders[0].Positions[0].Account)
}

type stakeSource map[types.Address]*big.Int

func (s stakeSource) Weight(account types.Address) *big.Int {
	if w, ok := s[account]; ok {
		return w
	}
	return big.NewInt(0)
}

func TestRewarders_Sync(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRewarders(t)
	id := types.RewarderTokenStaking

	source := stakeSource{alice: big.NewInt(42)}
	require.NoError(t, r.Sync(id, source, alice, 0))
	require.NoError(t, r.Sync(id, source, bob, 0))

	require.Equal(t, "42", r.GetWeight(id, alice).String())
	require.Equal(t, "0", r.GetWeight(id, bob).String())
	require.Equal(t, "42", r.GetTotalWeight(id).String())
}

func importedRewarder(balance, pending string) *types.AppState {
	return &types.AppState{
		Rewarders: []types.Rewarder{{
			ID:          types.RewarderGridPlacement,
			TotalWeight: "1",
			Pools: []types.RewardPool{{
				Asset:           types.AssetOption,
				Rate:            "0",
				RewardPerWeight: "0",
				Balance:         balance,
				Unallocated:     "0",
			}},
			Positions: []types.RewardPosition{{
				Account: alice,
				Weight:  "1",
				Rewards: []types.PositionReward{{Asset: types.AssetOption, Paid: "0", Pending: pending}},
			}},
		}},
	}
}

func TestRewarders_ImportRejectsUncoveredPending(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRewarders(t)
	require.NoError(t, r.Import(importedRewarder("5000", "5000")))

	r, _, _ = newTestRewarders(t)
	err := r.Import(importedRewarder("1000", "5000"))
	require.ErrorIs(t, err, code.ErrInsufficientPoolBalance)
}

func TestRewarders_ImportRejectsBadIDs(t *testing.T) {
	t.Parallel()

	state := importedRewarder("5000", "5000")
	state.Rewarders = append(state.Rewarders, state.Rewarders[0])
	r, _, _ := newTestRewarders(t)
	require.Error(t, r.Import(state))

	state = importedRewarder("5000", "5000")
	state.Rewarders[0].ID = types.RewarderID(9)
	r, _, _ = newTestRewarders(t)
	require.ErrorIs(t, r.Import(state), code.ErrUnknownRewarder)

	state = importedRewarder("5000", "5000")
	state.Rewarders[0].Pools[0].Asset = types.AssetBase
	r, _, _ = newTestRewarders(t)
	require.ErrorIs(t, r.Import(state), code.ErrUnknownAsset)
}
