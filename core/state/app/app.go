package app

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
)

const mainPrefix = 'd'

type RApp interface {
	Export(state *types.AppState)
	Owner() types.Address
	Params() *bus.Params
}

// App keeps the privileged owner and the genesis parameters.
type App struct {
	model   *Model
	isDirty bool

	db atomic.Value

	bus *bus.Bus
	mx  sync.Mutex
}

func NewApp(stateBus *bus.Bus, db *iavl.ImmutableTree) *App {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	app := &App{bus: stateBus, db: immutableTree}
	app.bus.SetApp(app)

	return app
}

func (a *App) immutableTree() *iavl.ImmutableTree {
	db := a.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (a *App) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	a.db.Store(immutableTree)
}

func (a *App) Commit(db *iavl.MutableTree, version int64) error {
	a.mx.Lock()
	defer a.mx.Unlock()

	if !a.isDirty {
		return nil
	}
	a.isDirty = false

	data, err := rlp.EncodeToBytes(a.model)
	if err != nil {
		return fmt.Errorf("can't encode app model: %s", err)
	}

	db.Set([]byte{mainPrefix}, data)

	return nil
}

func (a *App) Owner() types.Address {
	return a.getOrNew().Owner
}

func (a *App) SetOwner(owner types.Address) {
	a.getOrNew().setOwner(owner)
}

// IsOwner reports whether address is the privileged caller.
func (a *App) IsOwner(address types.Address) bool {
	owner := a.Owner()
	return !owner.IsZero() && owner == address
}

func (a *App) Params() *bus.Params {
	params := a.getOrNew().Params
	return &params
}

func (a *App) SetParams(params bus.Params) {
	a.getOrNew().setParams(params)
}

func (a *App) get() *Model {
	a.mx.Lock()
	defer a.mx.Unlock()

	if a.model != nil {
		return a.model
	}

	tree := a.immutableTree()
	if tree == nil {
		return nil
	}
	_, enc := tree.Get([]byte{mainPrefix})
	if len(enc) == 0 {
		return nil
	}

	model := &Model{}
	if err := rlp.DecodeBytes(enc, model); err != nil {
		panic(fmt.Sprintf("failed to decode app model: %s", err))
	}

	a.model = model
	a.model.markDirty = a.markDirty
	return a.model
}

func (a *App) getOrNew() *Model {
	model := a.get()
	if model == nil {
		model = &Model{
			Params: bus.Params{
				ReserveVirtual:  big.NewInt(0),
				MaxSupply:       big.NewInt(0),
				TileCost:        big.NewInt(0),
				InitialEmission: big.NewInt(0),
				TailEmission:    big.NewInt(0),
			},
			markDirty: a.markDirty,
		}
		a.mx.Lock()
		a.model = model
		a.mx.Unlock()
	}

	return model
}

func (a *App) markDirty() {
	a.isDirty = true
}

// Import loads owner and params from genesis.
func (a *App) Import(state *types.AppState) {
	a.SetOwner(state.Owner)
	a.SetParams(ParamsFromGenesis(state.Params))
}

func (a *App) Export(state *types.AppState) {
	state.Owner = a.Owner()
	p := a.Params()
	state.Params = types.Params{
		FeeBps:            p.FeeBps,
		ReserveVirtual:    p.ReserveVirtual.String(),
		MaxSupply:         p.MaxSupply.String(),
		TileCost:          p.TileCost.String(),
		GridWidth:         p.GridWidth,
		GridHeight:        p.GridHeight,
		EpochDuration:     p.EpochDuration,
		InitialEmission:   p.InitialEmission.String(),
		TailEmission:      p.TailEmission.String(),
		DecayBps:          p.DecayBps,
		GridShareBps:      p.GridShareBps,
		FeeRewardDuration: p.FeeRewardDuration,
	}
}

// ParamsFromGenesis converts the string amounts of p. p must be verified.
func ParamsFromGenesis(p types.Params) bus.Params {
	return bus.Params{
		FeeBps:            p.FeeBps,
		ReserveVirtual:    helpers.StringToBigInt(p.ReserveVirtual),
		MaxSupply:         helpers.StringToBigInt(p.MaxSupply),
		TileCost:          helpers.StringToBigInt(p.TileCost),
		GridWidth:         p.GridWidth,
		GridHeight:        p.GridHeight,
		EpochDuration:     p.EpochDuration,
		InitialEmission:   helpers.StringToBigIntOrZero(p.InitialEmission),
		TailEmission:      helpers.StringToBigIntOrZero(p.TailEmission),
		DecayBps:          p.DecayBps,
		GridShareBps:      p.GridShareBps,
		FeeRewardDuration: p.FeeRewardDuration,
	}
}
