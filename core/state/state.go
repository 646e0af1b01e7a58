package state

import (
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/cosmos/iavl"
	"github.com/pkg/errors"
	db "github.com/tendermint/tm-db"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/state/accounts"
	"github.com/tilemint/tilemint-node/core/state/app"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/state/checker"
	"github.com/tilemint/tilemint-node/core/state/coins"
	"github.com/tilemint/tilemint-node/core/state/emission"
	"github.com/tilemint/tilemint-node/core/state/fees"
	"github.com/tilemint/tilemint-node/core/state/grid"
	"github.com/tilemint/tilemint-node/core/state/rewarder"
	"github.com/tilemint/tilemint-node/core/state/token"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/fixed"
	"github.com/tilemint/tilemint-node/formula"
	"github.com/tilemint/tilemint-node/helpers"
	"github.com/tilemint/tilemint-node/tree"
)

type Interface interface {
	isValue_State()
}

// CheckState is the read-only view of a State.
type CheckState struct {
	state *State
}

func NewCheckState(state *State) *CheckState {
	return &CheckState{state: state}
}

func (cs *CheckState) isValue_State() {}

func (cs *CheckState) Export() types.AppState {
	appState := new(types.AppState)
	cs.App().Export(appState)
	cs.Accounts().Export(appState)
	cs.Coins().Export(appState)
	cs.Token().Export(appState)
	cs.Fees().Export(appState)
	cs.Rewarders().Export(appState)
	cs.Grids().Export(appState)
	cs.Emission().Export(appState)

	return *appState
}

func (cs *CheckState) App() app.RApp {
	return cs.state.App
}

func (cs *CheckState) Accounts() accounts.RAccounts {
	return cs.state.Accounts
}

func (cs *CheckState) Coins() coins.RCoins {
	return cs.state.Coins
}

func (cs *CheckState) Token() token.RToken {
	return cs.state.Token
}

func (cs *CheckState) Fees() fees.RFees {
	return cs.state.Fees
}

func (cs *CheckState) Rewarders() rewarder.RRewarders {
	return cs.state.Rewarders
}

func (cs *CheckState) Grids() grid.RGrids {
	return cs.state.Grids
}

func (cs *CheckState) Emission() emission.REmission {
	return cs.state.Emission
}

// Height is the version of the tree the view reads.
func (cs *CheckState) Height() int64 {
	return cs.state.height
}

type State struct {
	App       *app.App
	Accounts  *accounts.Accounts
	Coins     *coins.Coins
	Token     *token.Token
	Fees      *fees.Fees
	Rewarders *rewarder.Rewarders
	Grids     *grid.Grids
	Emission  *emission.Controller
	Checker   *checker.Checker

	db             db.DB
	events         eventsdb.IEventsDB
	tree           tree.MTree
	keepLastStates int64

	bus    *bus.Bus
	lock   sync.RWMutex
	height int64
}

func (s *State) isValue_State() {}

func NewState(height uint64, db db.DB, events eventsdb.IEventsDB, cacheSize int, keepLastStates int64) (*State, error) {
	iavlTree, err := tree.NewMutableTree(height, db, cacheSize)
	if err != nil {
		return nil, err
	}

	state := newStateForTree(iavlTree.GetLastImmutable(), events, db, keepLastStates)
	state.tree = iavlTree
	state.height = int64(height)

	return state, nil
}

func NewCheckStateAtHeight(height uint64, db db.DB) (*CheckState, error) {
	iavlTree, err := tree.NewImmutableTree(height, db)
	if err != nil {
		return nil, err
	}
	return NewCheckState(newStateForTree(iavlTree, nil, db, 0)), nil
}

// NewCheckStateForTree is a read-only view of a committed tree version. Its
// module caches are not shared with any other state.
func NewCheckStateForTree(immutableTree *iavl.ImmutableTree) *CheckState {
	return NewCheckState(newStateForTree(immutableTree, nil, nil, 0))
}

func (s *State) Tree() tree.MTree {
	return s.tree
}

func (s *State) Bus() *bus.Bus {
	return s.bus
}

func (s *State) Height() int64 {
	return s.height
}

func (s *State) Lock() {
	s.lock.Lock()
}

func (s *State) Unlock() {
	s.lock.Unlock()
}

func (s *State) RLock() {
	s.lock.RLock()
}

func (s *State) RUnlock() {
	s.lock.RUnlock()
}

// Check verifies asset conservation for the block and the cross-module
// accounting invariants.
func (s *State) Check() error {
	if err := s.Checker.Check(); err != nil {
		return err
	}
	return CheckForInvariants(NewCheckState(s))
}

func (s *State) Commit() ([]byte, error) {
	s.Checker.Reset()

	hash, version, err := s.tree.Commit(
		s.App,
		s.Accounts,
		s.Coins,
		s.Token,
		s.Fees,
		s.Rewarders,
		s.Grids,
		s.Emission,
	)
	if err != nil {
		return hash, err
	}

	s.height = version

	if s.keepLastStates <= 0 {
		return hash, nil
	}
	versionToDelete := version - s.keepLastStates - 1
	if versionToDelete < 1 {
		return hash, nil
	}

	if err := s.tree.DeleteVersion(versionToDelete); err != nil {
		log.Printf("DeleteVersion %d error: %s\n", versionToDelete, err)
	}

	return hash, nil
}

// Import loads a verified genesis state.
func (s *State) Import(state types.AppState) error {
	s.App.Import(&state)

	for _, a := range state.Accounts {
		s.Accounts.SetNonce(a.Address, a.Nonce)
		for _, b := range a.Balance {
			s.Accounts.SetBalance(a.Address, b.Asset, helpers.StringToBigInt(b.Value))
		}
		for _, allowance := range a.Allowances {
			s.Accounts.Approve(a.Address, allowance.Spender, allowance.Asset, helpers.StringToBigInt(allowance.Value))
		}
	}

	for _, c := range state.Coins {
		s.Coins.SetVolume(c.Asset, helpers.StringToBigInt(c.Volume))
	}

	if err := s.Token.Import(&state); err != nil {
		return errors.Wrap(err, "import token")
	}
	s.Fees.Import(&state)
	if err := s.Rewarders.Import(&state); err != nil {
		return errors.Wrap(err, "import rewarders")
	}
	if err := s.Grids.Import(&state); err != nil {
		return errors.Wrap(err, "import grids")
	}
	s.Emission.Import(&state)

	return s.Check()
}

func (s *State) Export() types.AppState {
	state, err := NewCheckStateAtHeight(uint64(s.tree.Version()), s.db)
	if err != nil {
		log.Panicf("Create new state at height %d failed: %s", s.tree.Version(), err)
	}

	return state.Export()
}

func newStateForTree(immutableTree *iavl.ImmutableTree, events eventsdb.IEventsDB, db db.DB, keepLastStates int64) *State {
	stateBus := bus.NewBus()
	stateBus.SetEvents(events)

	stateChecker := checker.NewChecker(stateBus)

	return &State{
		App:       app.NewApp(stateBus, immutableTree),
		Accounts:  accounts.NewAccounts(stateBus, immutableTree),
		Coins:     coins.NewCoins(stateBus, immutableTree),
		Token:     token.NewToken(stateBus, immutableTree),
		Fees:      fees.NewFees(stateBus, immutableTree),
		Rewarders: rewarder.NewRewarders(stateBus, immutableTree),
		Grids:     grid.NewGrids(stateBus, immutableTree),
		Emission:  emission.NewController(stateBus, immutableTree),
		Checker:   stateChecker,

		height:         immutableTree.Version(),
		bus:            stateBus,
		db:             db,
		events:         events,
		keepLastStates: keepLastStates,
	}
}

// CheckForInvariants compares every module ledger with the balances of the
// account that holds its assets.
func CheckForInvariants(cs *CheckState) error {
	balance := cs.Accounts().GetBalance

	tokenState := cs.Token()
	expected := new(big.Int).Add(tokenState.ReserveReal(), tokenState.FloorReserve())
	expected.Sub(expected, tokenState.TotalDebt())
	if reserve := balance(types.TokenReserveAddress, types.AssetBase); reserve.Cmp(expected) != 0 {
		return fmt.Errorf("curve reserve %s, floor reserve %s, debt %s, reserve account holds %s",
			tokenState.ReserveReal(), tokenState.FloorReserve(), tokenState.TotalDebt(), reserve)
	}
	if volume := cs.Coins().GetVolume(types.AssetToken); volume.Cmp(tokenState.Circulating()) != 0 {
		return fmt.Errorf("curve supply %s, exercised %s, TOKEN volume %s", tokenState.TotalSupply(), tokenState.Exercised(), volume)
	}
	if err := checkFloorBacking(tokenState); err != nil {
		return err
	}
	if staked := balance(types.TokenStakeAddress, types.AssetToken); staked.Cmp(tokenState.TotalStaked()) != 0 {
		return fmt.Errorf("total staked %s, stake account holds %s", tokenState.TotalStaked(), staked)
	}
	if err := checkCurve(tokenState.Curve()); err != nil {
		return err
	}

	for _, asset := range types.Assets() {
		if held := balance(types.FeesAddress, asset); held.Cmp(cs.Fees().GetAccrued(asset)) != 0 {
			return fmt.Errorf("accrued %s fees %s, fee account holds %s", asset.Symbol(), cs.Fees().GetAccrued(asset), held)
		}
	}

	for _, id := range types.Rewarders() {
		for _, asset := range rewarder.RewardAssets(id) {
			pool := cs.Rewarders().GetPool(id, asset)
			if held := balance(id.Address(), asset); held.Cmp(pool.Balance) != 0 {
				return fmt.Errorf("rewarder %s tracks %s %s, holds %s", id, pool.Balance, asset.Symbol(), held)
			}
		}
	}

	return nil
}

// checkFloorBacking holds exercised TOKEN to its floor reserve and the total
// debt to the staked TOKEN at the floor price.
func checkFloorBacking(t token.RToken) error {
	price, err := t.FloorPrice()
	if err != nil {
		return err
	}
	backing, err := fixed.MulWad(t.Exercised(), price)
	if err != nil {
		return err
	}
	if t.FloorReserve().Cmp(backing) < 0 {
		return fmt.Errorf("floor reserve %s below exercised %s at the floor price", t.FloorReserve(), t.Exercised())
	}
	collateral, err := fixed.MulWad(t.TotalStaked(), price)
	if err != nil {
		return err
	}
	if t.TotalDebt().Cmp(collateral) > 0 {
		return fmt.Errorf("total debt %s above staked %s at the floor price", t.TotalDebt(), t.TotalStaked())
	}
	return nil
}

func checkCurve(c formula.Curve) error {
	if c.MaxSupply == nil || c.MaxSupply.Sign() == 0 {
		return nil
	}

	k, err := c.K()
	if err != nil {
		return err
	}
	base, err := c.ReserveBase()
	if err != nil {
		return err
	}
	tokens, err := c.ReserveToken()
	if err != nil {
		return fmt.Errorf("curve supply %s above max supply %s", c.Supply, c.MaxSupply)
	}
	if product := new(big.Int).Mul(base, tokens); product.Cmp(k) < 0 {
		return fmt.Errorf("curve product %s below k %s", product, k)
	}

	return nil
}
