package accounts

import (
	"math/big"
	"sort"
	"sync"

	"github.com/tilemint/tilemint-node/core/types"
)

type allowanceKey struct {
	Spender types.Address
	Asset   types.AssetID
}

type Model struct {
	Nonce uint64

	address    types.Address
	balances   map[types.AssetID]*big.Int
	allowances map[allowanceKey]*big.Int

	dirtyBalances   map[types.AssetID]struct{}
	dirtyAllowances map[allowanceKey]struct{}
	isDirty         bool // nonce

	markDirty func(types.Address)
	lock      sync.RWMutex
}

func newModel(address types.Address, markDirty func(types.Address)) *Model {
	return &Model{
		address:         address,
		balances:        map[types.AssetID]*big.Int{},
		allowances:      map[allowanceKey]*big.Int{},
		dirtyBalances:   map[types.AssetID]struct{}{},
		dirtyAllowances: map[allowanceKey]struct{}{},
		markDirty:       markDirty,
	}
}

func (model *Model) setNonce(nonce uint64) {
	model.lock.Lock()
	model.Nonce = nonce
	model.isDirty = true
	model.lock.Unlock()

	model.markDirty(model.address)
}

func (model *Model) setBalance(asset types.AssetID, amount *big.Int) {
	model.lock.Lock()
	model.balances[asset] = amount
	model.dirtyBalances[asset] = struct{}{}
	model.lock.Unlock()

	model.markDirty(model.address)
}

func (model *Model) setAllowance(key allowanceKey, amount *big.Int) {
	model.lock.Lock()
	model.allowances[key] = amount
	model.dirtyAllowances[key] = struct{}{}
	model.lock.Unlock()

	model.markDirty(model.address)
}

func (model *Model) getOrderedDirtyBalances() []types.AssetID {
	model.lock.RLock()
	defer model.lock.RUnlock()

	keys := make([]types.AssetID, 0, len(model.dirtyBalances))
	for k := range model.dirtyBalances {
		keys = append(keys, k)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})

	return keys
}

func (model *Model) getOrderedDirtyAllowances() []allowanceKey {
	model.lock.RLock()
	defer model.lock.RUnlock()

	keys := make([]allowanceKey, 0, len(model.dirtyAllowances))
	for k := range model.dirtyAllowances {
		keys = append(keys, k)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if c := keys[i].Spender.Compare(keys[j].Spender); c != 0 {
			return c < 0
		}
		return keys[i].Asset < keys[j].Asset
	})

	return keys
}
