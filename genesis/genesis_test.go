package genesis

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/types"
)

var owner = types.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestDefault_ImportsIntoState(t *testing.T) {
	appState := Default(owner, units(1000))

	data, err := json.Marshal(appState)
	require.NoError(t, err)
	validated, err := Validate(data)
	require.NoError(t, err)

	s, err := state.NewState(0, db.NewMemDB(), nil, 1024, 1)
	require.NoError(t, err)
	require.NoError(t, s.Import(*validated))
	require.NoError(t, s.Check())

	require.Equal(t, units(1000).String(), s.Accounts.GetBalance(owner, types.AssetBase).String())
	require.Len(t, s.Grids.Colors(), len(Palette))
}

func TestValidate(t *testing.T) {
	valid := Default(owner, units(1))

	tests := []struct {
		name   string
		modify func(document map[string]interface{})
		errMsg string
	}{
		{
			name:   "valid",
			modify: func(map[string]interface{}) {},
		},
		{
			name: "missing owner",
			modify: func(document map[string]interface{}) {
				delete(document, "owner")
			},
			errMsg: "owner",
		},
		{
			name: "amount with decimals",
			modify: func(document map[string]interface{}) {
				document["params"].(map[string]interface{})["tile_cost"] = "1.5"
			},
			errMsg: "tile_cost",
		},
		{
			name: "unknown color",
			modify: func(document map[string]interface{}) {
				document["grids"].(map[string]interface{})["colors"] = []string{"red"}
			},
			errMsg: "colors",
		},
		{
			name: "zero owner passes the schema but not the state rules",
			modify: func(document map[string]interface{}) {
				document["owner"] = types.Address{}.String()
			},
			errMsg: "owner is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(valid)
			require.NoError(t, err)

			var document map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &document))
			tt.modify(document)
			data, err = json.Marshal(document)
			require.NoError(t, err)

			appState, err := Validate(data)
			if tt.errMsg == "" {
				require.NoError(t, err)
				require.Equal(t, owner, appState.Owner)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGenesisDoc_SaveAndRead(t *testing.T) {
	doc, err := NewGenesisDoc("tilemint-test", Default(owner, units(5)), time.Unix(1000, 0), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.InitialHeight)

	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, doc.SaveAs(path))

	read, appState, err := AppStateFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "tilemint-test", read.ChainID)
	require.Equal(t, units(5).String(), appState.Accounts[0].Balance[0].Value)
}

func TestVerify_RejectsDuplicateGridsAndRewarders(t *testing.T) {
	appState := Default(owner, units(1))
	appState.Grids.NextID = 2
	appState.Grids.List = []types.Grid{{ID: 0, Owner: owner}, {ID: 1, Owner: owner}}
	require.NoError(t, appState.Verify())

	appState.Grids.List = append(appState.Grids.List, types.Grid{ID: 1, Owner: owner})
	require.EqualError(t, appState.Verify(), "duplicate grid 1")
	appState.Grids.List = appState.Grids.List[:2]

	appState.Rewarders = []types.Rewarder{
		{ID: types.RewarderGridPlacement, TotalWeight: "0"},
		{ID: types.RewarderGridPlacement, TotalWeight: "0"},
	}
	require.EqualError(t, appState.Verify(), "duplicate rewarder "+types.RewarderGridPlacement.String())

	appState.Rewarders = []types.Rewarder{{ID: types.RewarderID(7), TotalWeight: "0"}}
	require.EqualError(t, appState.Verify(), "unknown rewarder 7")
}
