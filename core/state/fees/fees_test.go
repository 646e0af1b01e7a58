package fees

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state/accounts"
	"github.com/tilemint/tilemint-node/core/state/app"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/state/rewarder"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
	"github.com/tilemint/tilemint-node/tree"
)

var (
	payer  = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
	staker = types.HexToAddress("0x18467bbb64a8edf890201d526c35957d82be3d95")
)

type testState struct {
	tree      tree.MTree
	accounts  *accounts.Accounts
	rewarders *rewarder.Rewarders
	fees      *Fees
}

func newTestState(t *testing.T) *testState {
	t.Helper()

	b := bus.NewBus()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)

	immutable := mutableTree.GetLastImmutable()
	a := app.NewApp(b, immutable)
	a.SetParams(bus.Params{
		ReserveVirtual:    big.NewInt(0),
		MaxSupply:         big.NewInt(0),
		TileCost:          big.NewInt(0),
		InitialEmission:   big.NewInt(0),
		TailEmission:      big.NewInt(0),
		FeeRewardDuration: 100,
	})

	s := &testState{
		tree:      mutableTree,
		accounts:  accounts.NewAccounts(b, immutable),
		rewarders: rewarder.NewRewarders(b, immutable),
		fees:      NewFees(b, immutable),
	}
	s.accounts.SetBalance(payer, types.AssetBase, helpers.ToWei(big.NewInt(10000)))
	s.accounts.SetBalance(payer, types.AssetOption, helpers.ToWei(big.NewInt(10000)))

	return s
}

func TestFees_ReceiveFee(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	fee := helpers.ToWei(big.NewInt(3))
	require.NoError(t, s.fees.ReceiveFee(payer, types.AssetBase, fee))
	require.NoError(t, s.fees.ReceiveFee(payer, types.AssetBase, big.NewInt(0)))

	require.Equal(t, fee.String(), s.fees.GetAccrued(types.AssetBase).String())
	require.Equal(t, fee.String(), s.accounts.GetBalance(types.FeesAddress, types.AssetBase).String())
	require.Equal(t, "9997000000000000000000", s.accounts.GetBalance(payer, types.AssetBase).String())

	err := s.fees.ReceiveFee(staker, types.AssetBase, fee)
	require.ErrorIs(t, err, code.ErrInsufficientBalance)
	require.Equal(t, fee.String(), s.fees.GetAccrued(types.AssetBase).String())
}

func TestFees_DistributeStreamsToStakers(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	require.NoError(t, s.rewarders.SetWeight(types.RewarderTokenStaking, staker, big.NewInt(10), 0))

	fee := helpers.ToWei(big.NewInt(1000))
	require.NoError(t, s.fees.ReceiveFee(payer, types.AssetBase, fee))
	require.NoError(t, s.fees.ReceiveFee(payer, types.AssetOption, big.NewInt(5)))

	distributed, err := s.fees.Distribute(0)
	require.NoError(t, err)
	require.Len(t, distributed, 1)
	require.Equal(t, fee.String(), distributed[types.AssetBase].String())

	require.Equal(t, 0, s.fees.GetAccrued(types.AssetBase).Sign())
	require.Equal(t, "5", s.fees.GetAccrued(types.AssetOption).String())
	require.Equal(t, 0, s.accounts.GetBalance(types.FeesAddress, types.AssetBase).Sign())

	model := s.fees.GetModel(types.AssetBase)
	require.Equal(t, fee.String(), model.Received.String())
	require.Equal(t, fee.String(), model.Distributed.String())

	earned, err := s.rewarders.Earned(types.RewarderTokenStaking, staker, types.AssetBase, 100)
	require.NoError(t, err)
	require.Equal(t, fee.String(), earned.String())
}

func TestFees_CommitExport(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	require.NoError(t, s.fees.ReceiveFee(payer, types.AssetOption, big.NewInt(77)))
	_, _, err := s.tree.Commit(s.accounts, s.fees)
	require.NoError(t, err)

	reloaded := NewFees(bus.NewBus(), s.tree.GetLastImmutable())
	require.Equal(t, "77", reloaded.GetAccrued(types.AssetOption).String())

	state := &types.AppState{}
	reloaded.Export(state)
	require.Equal(t, []types.Balance{{Asset: types.AssetOption, Value: "77"}}, state.Fees)
}
