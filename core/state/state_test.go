package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/types"
)

var (
	owner = types.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
	bob   = types.HexToAddress("0x18467bbb64a8edf890201d526c35957d82be3d95")
)

func genesis() types.AppState {
	return types.AppState{
		Owner: owner,
		Params: types.Params{
			FeeBps:            30,
			ReserveVirtual:    "1000",
			MaxSupply:         "1000",
			TileCost:          "10",
			GridWidth:         4,
			GridHeight:        4,
			EpochDuration:     100,
			InitialEmission:   "1000",
			TailEmission:      "100",
			DecayBps:          5000,
			GridShareBps:      4000,
			FeeRewardDuration: 10,
		},
		Accounts: []types.Account{
			{
				Address: alice,
				Balance: []types.Balance{
					{Asset: types.AssetBase, Value: "10000"},
					{Asset: types.AssetOption, Value: "500"},
				},
				Allowances: []types.Allowance{{Spender: types.GridAddress, Asset: types.AssetOption, Value: "500"}},
				Nonce:      3,
			},
			{
				Address: bob,
				Balance: []types.Balance{{Asset: types.AssetBase, Value: "2000"}},
			},
		},
		Coins: []types.Coin{
			{Asset: types.AssetBase, Symbol: "BASE", Volume: "12000"},
			{Asset: types.AssetOption, Symbol: "OTOKEN", Volume: "500"},
		},
		Token: types.Token{TotalSupply: "0", ReserveReal: "0", TotalStaked: "0"},
		Grids: types.Grids{
			NextID: 1,
			Colors: []string{"#000000", "#ffffff"},
			List:   []types.Grid{{ID: 0, Owner: owner}},
		},
		Emission: types.EmissionInfo{Weekly: "0"},
	}
}

func newState(t *testing.T) *State {
	t.Helper()

	memDB := db.NewMemDB()
	s, err := NewState(0, memDB, eventsdb.NewEventsStore(db.NewMemDB()), 1024, 2)
	require.NoError(t, err)

	return s
}

func TestState_ImportCommitExport(t *testing.T) {
	t.Parallel()
	s := newState(t)

	require.NoError(t, s.Import(genesis()))
	_, err := s.Commit()
	require.NoError(t, err)
	require.Equal(t, int64(1), s.Height())

	_, err = s.Token.Mint(bob, big.NewInt(1000), nil, bob)
	require.NoError(t, err)
	_, err = s.Grids.Place(0, alice, alice, []uint32{0, 1}, []uint32{0, 0}, 1, 10)
	require.NoError(t, err)
	require.NoError(t, s.Check())

	hash, err := s.Commit()
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Equal(t, int64(2), s.Height())

	exported := s.Export()
	require.NoError(t, exported.Verify())
	require.Equal(t, owner, exported.Owner)
	require.Equal(t, "997", exported.Token.ReserveReal)
	require.Len(t, exported.Grids.List, 1)
	require.Len(t, exported.Grids.List[0].Tiles, 2)

	// the export restores into an equal state
	restored := newState(t)
	require.NoError(t, restored.Import(exported))
	_, err = restored.Commit()
	require.NoError(t, err)

	again := restored.Export()
	require.Equal(t, exported.Token, again.Token)
	require.Equal(t, exported.Coins, again.Coins)
	require.Equal(t, exported.Grids, again.Grids)
	require.Equal(t, "20", restored.Fees.GetAccrued(types.AssetOption).String())
	require.Equal(t, uint64(2), restored.Grids.Placements(0, alice))
}

func TestState_CheckStateAtHeight(t *testing.T) {
	t.Parallel()
	memDB := db.NewMemDB()
	s, err := NewState(0, memDB, nil, 1024, 0)
	require.NoError(t, err)

	require.NoError(t, s.Import(genesis()))
	_, err = s.Commit()
	require.NoError(t, err)

	require.NoError(t, s.Accounts.Transfer(alice, bob, types.AssetBase, big.NewInt(100)))
	_, err = s.Commit()
	require.NoError(t, err)

	first, err := NewCheckStateAtHeight(1, memDB)
	require.NoError(t, err)
	require.Equal(t, "2000", first.Accounts().GetBalance(bob, types.AssetBase).String())

	second, err := NewCheckStateAtHeight(2, memDB)
	require.NoError(t, err)
	require.Equal(t, "2100", second.Accounts().GetBalance(bob, types.AssetBase).String())
	require.Equal(t, uint64(3), second.Accounts().GetNonce(alice))
}

func TestState_KeepLastStates(t *testing.T) {
	t.Parallel()
	s := newState(t)
	require.NoError(t, s.Import(genesis()))

	for i := 0; i < 5; i++ {
		_, err := s.Commit()
		require.NoError(t, err)
	}

	require.Equal(t, []int{3, 4, 5}, s.Tree().AvailableVersions())
}

func TestState_CheckDetectsUnbackedBalance(t *testing.T) {
	t.Parallel()
	s := newState(t)
	require.NoError(t, s.Import(genesis()))

	s.Accounts.AddBalance(bob, types.AssetBase, big.NewInt(1))
	require.Error(t, s.Check())
}

func TestState_CheckDetectsBrokenLedger(t *testing.T) {
	t.Parallel()
	s := newState(t)
	require.NoError(t, s.Import(genesis()))
	_, err := s.Commit()
	require.NoError(t, err)

	// BASE moved into the reserve account without going through the curve
	require.NoError(t, s.Accounts.Transfer(bob, types.TokenReserveAddress, types.AssetBase, big.NewInt(5)))
	require.EqualError(t, s.Check(), "curve reserve 0, reserve account holds 5")
}

func TestState_ImportRejectsUnbackedGenesis(t *testing.T) {
	t.Parallel()
	s := newState(t)

	g := genesis()
	g.Coins[0].Volume = "11999"
	require.Error(t, s.Import(g))
}
