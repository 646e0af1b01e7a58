package fees

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/helpers"
)

const mainPrefix = byte('f')

type RFees interface {
	Export(state *types.AppState)
	GetAccrued(asset types.AssetID) *big.Int
	GetModel(asset types.AssetID) Model
}

// Fees collects the curve and placement fees in the fee account and
// periodically streams them to token stakers.
type Fees struct {
	list  map[types.AssetID]*Model
	dirty map[types.AssetID]struct{}

	bus *bus.Bus
	db  atomic.Value

	lock sync.RWMutex
}

func NewFees(stateBus *bus.Bus, db *iavl.ImmutableTree) *Fees {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	fees := &Fees{
		bus:   stateBus,
		db:    immutableTree,
		list:  map[types.AssetID]*Model{},
		dirty: map[types.AssetID]struct{}{},
	}
	fees.bus.SetFees(fees)

	return fees
}

func (f *Fees) immutableTree() *iavl.ImmutableTree {
	db := f.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (f *Fees) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	f.db.Store(immutableTree)
}

func (f *Fees) Commit(db *iavl.MutableTree, version int64) error {
	for _, asset := range f.getOrderedDirty() {
		model := f.getFromMap(asset)

		f.lock.Lock()
		delete(f.dirty, asset)
		f.lock.Unlock()

		data, err := rlp.EncodeToBytes(model)
		if err != nil {
			return fmt.Errorf("can't encode fees of %s: %v", asset, err)
		}

		db.Set([]byte{mainPrefix, byte(asset)}, data)
	}

	return nil
}

func (f *Fees) getOrderedDirty() []types.AssetID {
	f.lock.RLock()
	keys := make([]types.AssetID, 0, len(f.dirty))
	for k := range f.dirty {
		keys = append(keys, k)
	}
	f.lock.RUnlock()

	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})

	return keys
}

func (f *Fees) getFromMap(asset types.AssetID) *Model {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return f.list[asset]
}

func (f *Fees) markDirty(asset types.AssetID) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.dirty[asset] = struct{}{}
}

func (f *Fees) get(asset types.AssetID) *Model {
	if model := f.getFromMap(asset); model != nil {
		return model
	}

	model := newModel()
	if tree := f.immutableTree(); tree != nil {
		_, enc := tree.Get([]byte{mainPrefix, byte(asset)})
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, model); err != nil {
				panic(fmt.Sprintf("failed to decode fees of %s: %s", asset, err))
			}
		}
	}
	model.asset = asset
	model.markDirty = f.markDirty

	f.lock.Lock()
	f.list[asset] = model
	f.lock.Unlock()

	return model
}

// GetAccrued returns the fees of asset waiting for the next distribution.
func (f *Fees) GetAccrued(asset types.AssetID) *big.Int {
	return new(big.Int).Set(f.get(asset).Accrued)
}

func (f *Fees) GetModel(asset types.AssetID) Model {
	return *f.get(asset)
}

// ReceiveFee moves amount from the payer into the fee account.
func (f *Fees) ReceiveFee(from types.Address, asset types.AssetID, amount *big.Int) error {
	if !asset.IsValid() {
		return errors.Wrapf(code.ErrUnknownAsset, "asset %d", asset)
	}
	if amount.Sign() == 0 {
		return nil
	}

	if err := f.bus.Accounts().Transfer(from, types.FeesAddress, asset, amount); err != nil {
		return err
	}
	f.get(asset).receive(amount)

	return nil
}

// Distribute notifies the token staking rewarder with every accrued fee that
// yields a non-zero reward rate and returns what was handed over. Fees too
// small for a rate stay accrued.
func (f *Fees) Distribute(now uint64) (map[types.AssetID]*big.Int, error) {
	duration := f.bus.App().Params().FeeRewardDuration
	rewarders := f.bus.Rewarders()
	id := types.RewarderTokenStaking

	result := map[types.AssetID]*big.Int{}
	for _, asset := range types.Assets() {
		model := f.get(asset)
		if model.Accrued.Sign() == 0 {
			continue
		}

		if err := rewarders.CheckNotify(id, asset, model.Accrued, duration, now); err != nil {
			if errors.Is(err, code.ErrRewardTooSmall) || errors.Is(err, code.ErrUnknownAsset) {
				continue
			}
			return nil, err
		}

		amount := new(big.Int).Set(model.Accrued)
		if err := rewarders.NotifyReward(id, types.FeesAddress, asset, amount, duration, now); err != nil {
			return nil, err
		}
		model.distribute()
		result[asset] = amount
	}

	return result, nil
}

// Import restores accrued fees. Received and distributed totals restart.
func (f *Fees) Import(state *types.AppState) {
	for _, balance := range state.Fees {
		model := f.get(balance.Asset)
		model.Accrued = helpers.StringToBigIntOrZero(balance.Value)
		model.markDirty(balance.Asset)
	}
}

func (f *Fees) Export(state *types.AppState) {
	for _, asset := range types.Assets() {
		accrued := f.GetAccrued(asset)
		if accrued.Sign() == 0 {
			continue
		}
		state.Fees = append(state.Fees, types.Balance{Asset: asset, Value: accrued.String()})
	}
}
