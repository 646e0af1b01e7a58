package genesis

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	tmtypes "github.com/tendermint/tendermint/types"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
)

const schemaURL = "https://tilemint.network/schemas/appstate.schema.json"

//go:embed appstate.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Palette is the 16 color palette new networks start with.
var Palette = []string{
	"#000000", "#ffffff", "#808080", "#c0c0c0",
	"#800000", "#ff0000", "#808000", "#ffff00",
	"#008000", "#00ff00", "#008080", "#00ffff",
	"#000080", "#0000ff", "#800080", "#ff00ff",
}

func units(n int64) *big.Int {
	return helpers.ToWei(big.NewInt(n))
}

// DefaultParams are the economics of a fresh network: weekly epochs, a 1%
// weekly emission decay and an even split between stakers and placements.
func DefaultParams() types.Params {
	const week = 7 * 24 * 60 * 60

	return types.Params{
		FeeBps:            30,
		ReserveVirtual:    units(1_000_000).String(),
		MaxSupply:         units(1_000_000_000).String(),
		TileCost:          units(1).String(),
		GridWidth:         64,
		GridHeight:        64,
		EpochDuration:     week,
		InitialEmission:   units(1_000_000).String(),
		TailEmission:      units(10_000).String(),
		DecayBps:          100,
		GridShareBps:      5000,
		FeeRewardDuration: week,
	}
}

// Default is the app state of a new network. The owner holds the whole BASE
// supply and the first grid.
func Default(owner types.Address, baseSupply *big.Int) types.AppState {
	return types.AppState{
		Owner:  owner,
		Params: DefaultParams(),
		Accounts: []types.Account{
			{Address: owner, Balance: []types.Balance{{Asset: types.AssetBase, Value: baseSupply.String()}}},
		},
		Coins: []types.Coin{
			{Asset: types.AssetBase, Symbol: types.AssetBase.Symbol(), Volume: baseSupply.String()},
		},
		Token: types.Token{TotalSupply: "0", ReserveReal: "0", TotalStaked: "0"},
		Grids: types.Grids{
			NextID: 1,
			Colors: append([]string(nil), Palette...),
			List:   []types.Grid{{ID: 0, Owner: owner}},
		},
		Emission: types.EmissionInfo{Weekly: "0"},
	}
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks the app state JSON against the schema and the structural
// rules of the state, and returns it decoded.
func Validate(data []byte) (*types.AppState, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, errors.Wrap(err, "compile app state schema")
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return nil, errors.Wrap(err, "decode app state")
	}
	if err := s.Validate(document); err != nil {
		return nil, errors.Wrap(err, "app state")
	}

	appState := new(types.AppState)
	if err := json.Unmarshal(data, appState); err != nil {
		return nil, errors.Wrap(err, "decode app state")
	}
	if err := appState.Verify(); err != nil {
		return nil, errors.Wrap(err, "app state")
	}

	return appState, nil
}

// NewGenesisDoc wraps appState into a Tendermint genesis document starting
// the chain at initialHeight. The validator set is left to the consensus node.
func NewGenesisDoc(chainID string, appState types.AppState, genesisTime time.Time, initialHeight int64) (*tmtypes.GenesisDoc, error) {
	appStateJSON, err := json.Marshal(appState)
	if err != nil {
		return nil, err
	}

	genesis := tmtypes.GenesisDoc{
		GenesisTime:   genesisTime.UTC(),
		ChainID:       chainID,
		InitialHeight: initialHeight,
		AppState:      appStateJSON,
	}
	if err := genesis.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genesis, nil
}

// AppStateFromFile reads and validates the app state of a genesis file.
func AppStateFromFile(path string) (*tmtypes.GenesisDoc, *types.AppState, error) {
	doc, err := tmtypes.GenesisDocFromFile(path)
	if err != nil {
		return nil, nil, err
	}

	appState, err := Validate(doc.AppState)
	if err != nil {
		return nil, nil, err
	}
	return doc, appState, nil
}
