package emission

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state/accounts"
	"github.com/tilemint/tilemint-node/core/state/app"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/state/coins"
	"github.com/tilemint/tilemint-node/core/state/rewarder"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
	"github.com/tilemint/tilemint-node/tree"
)

var (
	owner  = types.HexToAddress("0x00000000000000000000000000000000000000aa")
	keeper = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
)

func wei(units int64) *big.Int {
	return helpers.ToWei(big.NewInt(units))
}

type testState struct {
	tree       tree.MTree
	app        *app.App
	accounts   *accounts.Accounts
	coins      *coins.Coins
	rewarders  *rewarder.Rewarders
	controller *Controller
}

func newTestState(t *testing.T) *testState {
	t.Helper()

	b := bus.NewBus()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)

	immutable := mutableTree.GetLastImmutable()
	s := &testState{
		tree:       mutableTree,
		app:        app.NewApp(b, immutable),
		accounts:   accounts.NewAccounts(b, immutable),
		coins:      coins.NewCoins(b, immutable),
		rewarders:  rewarder.NewRewarders(b, immutable),
		controller: NewController(b, immutable),
	}
	s.app.SetOwner(owner)
	s.app.SetParams(bus.Params{
		ReserveVirtual:  big.NewInt(0),
		MaxSupply:       big.NewInt(0),
		TileCost:        big.NewInt(0),
		EpochDuration:   100,
		InitialEmission: wei(1000),
		TailEmission:    wei(100),
		DecayBps:        5000,
		GridShareBps:    4000,
	})

	return s
}

func TestController_Initialize(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	_, err := s.controller.UpdatePeriod(keeper, 1000)
	require.ErrorIs(t, err, code.ErrNotInitialized)

	require.ErrorIs(t, s.controller.Initialize(keeper, 250), code.ErrNotOwner)
	require.NoError(t, s.controller.Initialize(owner, 250))
	require.ErrorIs(t, s.controller.Initialize(owner, 260), code.ErrAlreadyInitialized)

	require.True(t, s.controller.Initialized())
	require.Equal(t, uint64(200), s.controller.ActivePeriod())
	require.Equal(t, uint64(300), s.controller.NextPeriod())
	require.Equal(t, wei(1000).String(), s.controller.Weekly().String())
}

func TestController_UpdatePeriod(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	require.NoError(t, s.controller.Initialize(owner, 250))

	result, err := s.controller.UpdatePeriod(keeper, 299)
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, 0, s.coins.GetVolume(types.AssetOption).Sign())

	result, err = s.controller.UpdatePeriod(keeper, 300)
	require.NoError(t, err)
	require.Equal(t, wei(1000).String(), result.Amount.String())
	require.Equal(t, wei(400).String(), result.GridShare.String())
	require.Equal(t, wei(600).String(), result.TokenShare.String())

	require.Equal(t, uint64(300), s.controller.ActivePeriod())
	require.Equal(t, wei(500).String(), s.controller.Weekly().String())
	require.Equal(t, wei(1000).String(), s.coins.GetVolume(types.AssetOption).String())
	require.Equal(t, 0, s.accounts.GetBalance(types.EmissionAddress, types.AssetOption).Sign())
	require.Equal(t, wei(400).String(), s.accounts.GetBalance(types.RewarderGridPlacement.Address(), types.AssetOption).String())
	require.Equal(t, wei(600).String(), s.accounts.GetBalance(types.RewarderTokenStaking.Address(), types.AssetOption).String())

	pool := s.rewarders.GetPool(types.RewarderGridPlacement, types.AssetOption)
	require.Equal(t, uint64(400), pool.PeriodFinish)
	require.Equal(t, "4000000000000000000", pool.Rate.String())

	// same epoch, nothing to do
	result, err = s.controller.UpdatePeriod(keeper, 399)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestController_SkippedEpochsEmitOnce(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	require.NoError(t, s.controller.Initialize(owner, 0))

	_, err := s.controller.UpdatePeriod(keeper, 100)
	require.NoError(t, err)

	result, err := s.controller.UpdatePeriod(keeper, 1050)
	require.NoError(t, err)
	require.Equal(t, wei(500).String(), result.Amount.String())
	require.Equal(t, uint64(1000), s.controller.ActivePeriod())
	require.Equal(t, uint64(2), s.controller.EpochCount())
	require.Equal(t, wei(1500).String(), s.coins.GetVolume(types.AssetOption).String())
}

func TestController_DecayStopsAtTail(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	require.NoError(t, s.controller.Initialize(owner, 0))

	expected := []int64{1000, 500, 250, 125, 100, 100}
	for i, amount := range expected {
		result, err := s.controller.UpdatePeriod(keeper, uint64(i+1)*100)
		require.NoError(t, err)
		require.Equal(t, wei(amount).String(), result.Amount.String(), "epoch %d", i+1)
	}
}

func TestController_CommitAndExport(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	require.NoError(t, s.controller.Initialize(owner, 0))
	_, err := s.controller.UpdatePeriod(keeper, 100)
	require.NoError(t, err)

	_, _, err = s.tree.Commit(s.app, s.accounts, s.coins, s.rewarders, s.controller)
	require.NoError(t, err)

	reloaded := NewController(bus.NewBus(), s.tree.GetLastImmutable())
	state := &types.AppState{}
	reloaded.Export(state)

	require.Equal(t, types.EmissionInfo{
		Initialized:  true,
		ActivePeriod: 100,
		Weekly:       wei(500).String(),
		EpochCount:   1,
	}, state.Emission)
}
