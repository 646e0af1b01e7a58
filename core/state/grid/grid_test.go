package grid

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state/accounts"
	"github.com/tilemint/tilemint-node/core/state/app"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/state/fees"
	"github.com/tilemint/tilemint-node/core/state/rewarder"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
	"github.com/tilemint/tilemint-node/tree"
)

var (
	owner = types.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
	bob   = types.HexToAddress("0x18467bbb64a8edf890201d526c35957d82be3d95")
)

type testState struct {
	tree      tree.MTree
	app       *app.App
	accounts  *accounts.Accounts
	fees      *fees.Fees
	rewarders *rewarder.Rewarders
	grids     *Grids
}

func oneToken() *big.Int {
	return helpers.ToWei(big.NewInt(1))
}

func newTestState(t *testing.T) *testState {
	t.Helper()

	b := bus.NewBus()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)

	immutable := mutableTree.GetLastImmutable()
	s := &testState{
		tree:      mutableTree,
		app:       app.NewApp(b, immutable),
		accounts:  accounts.NewAccounts(b, immutable),
		fees:      fees.NewFees(b, immutable),
		rewarders: rewarder.NewRewarders(b, immutable),
		grids:     NewGrids(b, immutable),
	}
	s.app.SetOwner(owner)
	s.app.SetParams(bus.Params{
		ReserveVirtual:  big.NewInt(0),
		MaxSupply:       big.NewInt(0),
		TileCost:        oneToken(),
		GridWidth:       4,
		GridHeight:      4,
		InitialEmission: big.NewInt(0),
		TailEmission:    big.NewInt(0),
	})

	for _, account := range []types.Address{alice, bob} {
		s.accounts.SetBalance(account, types.AssetOption, helpers.ToWei(big.NewInt(100)))
		s.accounts.Approve(account, types.GridAddress, types.AssetOption, helpers.ToWei(big.NewInt(100)))
	}

	id, err := s.grids.MintGrid(owner, owner)
	require.NoError(t, err)
	require.Equal(t, types.GridID(0), id)
	require.NoError(t, s.grids.SetColors(owner, []string{"#000000", "#00ff00"}))

	return s
}

func TestGrids_AliceBobOverwrite(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	cost, err := s.grids.Place(0, alice, alice, []uint32{0, 1}, []uint32{0, 0}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, helpers.ToWei(big.NewInt(2)).String(), cost.String())

	_, err = s.grids.Place(0, bob, bob, []uint32{1}, []uint32{0}, 0, 20)
	require.NoError(t, err)

	tile, err := s.grids.Tile(0, 1, 0)
	require.NoError(t, err)
	require.Equal(t, bob, tile.Owner)
	require.Equal(t, uint32(0), tile.Color)

	require.Equal(t, uint64(1), s.grids.TilesOwned(0, alice))
	require.Equal(t, uint64(1), s.grids.TilesOwned(0, bob))
	require.Equal(t, uint64(2), s.grids.Placements(0, alice))
	require.Equal(t, uint64(1), s.grids.Placements(0, bob))
	require.Equal(t, uint64(3), s.grids.TotalPlaced())

	require.Equal(t, "2", s.rewarders.GetWeight(types.RewarderGridPlacement, alice).String())
	require.Equal(t, "1", s.rewarders.GetWeight(types.RewarderGridPlacement, bob).String())
	require.Equal(t, "3", s.rewarders.GetTotalWeight(types.RewarderGridPlacement).String())

	coords, err := s.grids.OwnedCoords(0, alice)
	require.NoError(t, err)
	require.Equal(t, []Coord{{X: 0, Y: 0}}, coords)

	require.Equal(t, helpers.ToWei(big.NewInt(3)).String(), s.fees.GetAccrued(types.AssetOption).String())
	require.Equal(t, helpers.ToWei(big.NewInt(98)).String(), s.accounts.GetAllowance(alice, types.GridAddress, types.AssetOption).String())
}

func TestGrids_OwnershipSumMatchesClaimedTiles(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	batches := []struct {
		who    types.Address
		xs, ys []uint32
	}{
		{alice, []uint32{0, 1, 2, 3}, []uint32{0, 0, 0, 0}},
		{bob, []uint32{1, 1, 2}, []uint32{0, 0, 3}},
		{alice, []uint32{2, 3}, []uint32{3, 3}},
		{bob, []uint32{0}, []uint32{0}},
	}
	for _, b := range batches {
		_, err := s.grids.Place(0, b.who, b.who, b.xs, b.ys, 0, 1)
		require.NoError(t, err)
	}

	tiles, err := s.grids.Tiles(0)
	require.NoError(t, err)

	owned := s.grids.TilesOwned(0, alice) + s.grids.TilesOwned(0, bob)
	require.Equal(t, uint64(len(tiles)), owned)
	require.Equal(t, uint64(6), owned)
	require.Equal(t, uint64(4), s.grids.TilesOwned(0, alice))
	require.Equal(t, uint64(2), s.grids.TilesOwned(0, bob))
	require.Equal(t, "6", s.grids.Weight(alice).String())
	require.Equal(t, "4", s.grids.Weight(bob).String())
}

func TestGrids_PlaceOnBehalfOf(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	_, err := s.grids.Place(0, alice, bob, []uint32{3}, []uint32{3}, 0, 1)
	require.NoError(t, err)

	require.Equal(t, uint64(1), s.grids.TilesOwned(0, bob))
	require.Equal(t, uint64(0), s.grids.TilesOwned(0, alice))
	require.Equal(t, "1", s.rewarders.GetWeight(types.RewarderGridPlacement, bob).String())
	require.Equal(t, helpers.ToWei(big.NewInt(99)).String(), s.accounts.GetBalance(alice, types.AssetOption).String())
	require.Equal(t, helpers.ToWei(big.NewInt(100)).String(), s.accounts.GetBalance(bob, types.AssetOption).String())
}

func TestGrids_PlaceValidation(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	carol := types.HexToAddress("0x00000000000000000000000000000000000000cc")

	tests := []struct {
		name   string
		id     types.GridID
		payer  types.Address
		xs, ys []uint32
		color  uint32
		err    error
	}{
		{"unknown grid", 7, alice, []uint32{0}, []uint32{0}, 0, code.ErrGridNotFound},
		{"length mismatch", 0, alice, []uint32{0, 1}, []uint32{0}, 0, code.ErrLengthMismatch},
		{"empty", 0, alice, nil, nil, 0, code.ErrZeroAmount},
		{"x out of bounds", 0, alice, []uint32{0, 4}, []uint32{0, 0}, 0, code.ErrOutOfBounds},
		{"y out of bounds", 0, alice, []uint32{0}, []uint32{9}, 0, code.ErrOutOfBounds},
		{"unknown color", 0, alice, []uint32{0}, []uint32{0}, 2, code.ErrInvalidColor},
		{"no allowance", 0, carol, []uint32{0}, []uint32{0}, 0, code.ErrInsufficientAllowance},
	}

	for _, tt := range tests {
		_, err := s.grids.Place(tt.id, tt.payer, tt.payer, tt.xs, tt.ys, tt.color, 1)
		require.ErrorIs(t, err, tt.err, tt.name)
	}

	s.accounts.Approve(carol, types.GridAddress, types.AssetOption, oneToken())
	_, err := s.grids.Place(0, carol, carol, []uint32{0}, []uint32{0}, 0, 1)
	require.ErrorIs(t, err, code.ErrInsufficientBalance)

	tiles, err := s.grids.Tiles(0)
	require.NoError(t, err)
	require.Empty(t, tiles)
	require.Equal(t, uint64(0), s.grids.TotalPlaced())
	require.Equal(t, "0", s.rewarders.GetTotalWeight(types.RewarderGridPlacement).String())
}

func TestGrids_Palette(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	require.NoError(t, s.grids.SetColors(owner, []string{"#111111", "#222222", "#333333"}))
	require.Equal(t, []string{"#111111", "#222222", "#333333"}, s.grids.Colors())

	// a shorter update never shrinks
	require.NoError(t, s.grids.SetColors(owner, []string{"#aaaaaa"}))
	require.Equal(t, []string{"#aaaaaa", "#222222", "#333333"}, s.grids.Colors())

	require.NoError(t, s.grids.SetColor(owner, 3, "#444444"))
	require.NoError(t, s.grids.SetColor(owner, 0, "#FFFFFF"))
	require.Equal(t, []string{"#FFFFFF", "#222222", "#333333", "#444444"}, s.grids.Colors())

	require.ErrorIs(t, s.grids.SetColor(owner, 5, "#555555"), code.ErrInvalidColor)
	require.ErrorIs(t, s.grids.SetColor(owner, 1, "555555"), code.ErrInvalidColor)
	require.ErrorIs(t, s.grids.SetColors(owner, []string{"#000000", "#12345g"}), code.ErrInvalidColor)
	require.ErrorIs(t, s.grids.SetColor(alice, 0, "#000000"), code.ErrNotOwner)
	require.ErrorIs(t, s.grids.SetColors(alice, []string{"#000000"}), code.ErrNotOwner)

	require.Equal(t, []string{"#FFFFFF", "#222222", "#333333", "#444444"}, s.grids.Colors())
}

func TestGrids_RecolorIsRetroactive(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	_, err := s.grids.Place(0, alice, alice, []uint32{2}, []uint32{2}, 1, 1)
	require.NoError(t, err)
	require.NoError(t, s.grids.SetColor(owner, 1, "#ff0000"))

	tile, err := s.grids.Tile(0, 2, 2)
	require.NoError(t, err)
	color, ok := s.grids.Color(tile.Color)
	require.True(t, ok)
	require.Equal(t, "#ff0000", color)
}

func TestGrids_Collection(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	_, err := s.grids.MintGrid(alice, alice)
	require.ErrorIs(t, err, code.ErrNotOwner)

	id, err := s.grids.MintGrid(owner, alice)
	require.NoError(t, err)
	require.Equal(t, types.GridID(1), id)
	require.Equal(t, types.GridID(2), s.grids.NextID())

	require.ErrorIs(t, s.grids.TransferGrid(bob, id, bob), code.ErrNotOwner)
	require.ErrorIs(t, s.grids.TransferGrid(alice, 5, bob), code.ErrGridNotFound)
	require.NoError(t, s.grids.TransferGrid(alice, id, bob))

	info, err := s.grids.GetGrid(id)
	require.NoError(t, err)
	require.Equal(t, bob, info.Owner)
	require.Equal(t, uint32(4), info.Width)

	tile, err := s.grids.Tile(id, 0, 0)
	require.NoError(t, err)
	require.Nil(t, tile)
}

func TestGrids_CommitReloadExport(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	_, err := s.grids.Place(0, alice, alice, []uint32{0, 1}, []uint32{1, 1}, 1, 1)
	require.NoError(t, err)
	_, err = s.grids.Place(0, bob, bob, []uint32{1}, []uint32{1}, 0, 2)
	require.NoError(t, err)

	_, _, err = s.tree.Commit(s.app, s.accounts, s.fees, s.rewarders, s.grids)
	require.NoError(t, err)

	b := bus.NewBus()
	app.NewApp(b, s.tree.GetLastImmutable())
	reloaded := NewGrids(b, s.tree.GetLastImmutable())

	require.Equal(t, uint64(1), reloaded.TilesOwned(0, alice))
	require.Equal(t, uint64(2), reloaded.Placements(0, alice))
	require.Equal(t, "1", reloaded.Weight(bob).String())
	require.Equal(t, []string{"#000000", "#00ff00"}, reloaded.Colors())

	state := &types.AppState{}
	reloaded.Export(state)
	require.Equal(t, types.GridID(1), state.Grids.NextID)
	require.Len(t, state.Grids.List, 1)
	require.Equal(t, []types.Tile{
		{X: 0, Y: 1, Owner: alice, Color: 1},
		{X: 1, Y: 1, Owner: bob, Color: 0},
	}, state.Grids.List[0].Tiles)
	require.Len(t, state.Grids.Placements, 2)

	imported := NewGrids(b, nil)
	require.NoError(t, imported.Import(state))
	require.Equal(t, uint64(1), imported.TilesOwned(0, bob))
	require.Equal(t, "2", imported.Weight(alice).String())
	require.Equal(t, uint64(3), imported.TotalPlaced())
}

func TestGrids_ImportRejectsDuplicates(t *testing.T) {
	t.Parallel()
	b := bus.NewBus()

	state := &types.AppState{Grids: types.Grids{
		NextID: 2,
		List: []types.Grid{
			{ID: 0, Owner: alice},
			{ID: 1, Owner: bob},
			{ID: 0, Owner: bob},
		},
	}}
	require.EqualError(t, NewGrids(b, nil).Import(state), "duplicate grid 0")

	state.Grids.List = []types.Grid{{ID: 0, Owner: alice, Tiles: []types.Tile{
		{X: 1, Y: 1, Owner: alice},
		{X: 1, Y: 1, Owner: bob},
	}}}
	require.Error(t, NewGrids(b, nil).Import(state))

	state.Grids.List = []types.Grid{{ID: 0, Owner: alice}}
	state.Grids.Placements = []types.Placement{{Grid: 1, Account: bob, Count: 1}}
	require.ErrorIs(t, NewGrids(b, nil).Import(state), code.ErrGridNotFound)
}
