package accounts

import (
	"bytes"
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
)

const mainPrefix = byte('a')
const balancePrefix = byte('b')
const allowancePrefix = byte('l')

type RAccounts interface {
	Export(state *types.AppState)
	GetNonce(address types.Address) uint64
	GetBalance(address types.Address, asset types.AssetID) *big.Int
	GetBalances(address types.Address) map[types.AssetID]*big.Int
	GetAllowance(owner, spender types.Address, asset types.AssetID) *big.Int
}

type Accounts struct {
	list  map[types.Address]*Model
	dirty map[types.Address]struct{}

	db  atomic.Value
	bus *bus.Bus

	lock sync.RWMutex
}

func NewAccounts(stateBus *bus.Bus, db *iavl.ImmutableTree) *Accounts {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	accounts := &Accounts{db: immutableTree, bus: stateBus, list: map[types.Address]*Model{}, dirty: map[types.Address]struct{}{}}
	accounts.bus.SetAccounts(NewBus(accounts))

	return accounts
}

func (a *Accounts) immutableTree() *iavl.ImmutableTree {
	db := a.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (a *Accounts) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	a.db.Store(immutableTree)
}

func (a *Accounts) Commit(db *iavl.MutableTree, version int64) error {
	for _, address := range a.getOrderedDirtyAccounts() {
		account := a.getFromMap(address)
		a.lock.Lock()
		delete(a.dirty, address)
		a.lock.Unlock()

		// save nonce
		if account.isDirty {
			account.isDirty = false
			data, err := rlp.EncodeToBytes(account)
			if err != nil {
				return fmt.Errorf("can't encode object at %x: %v", address[:], err)
			}

			db.Set(accountPath(address), data)
		}

		// save balances
		for _, asset := range account.getOrderedDirtyBalances() {
			balance := account.balances[asset]
			path := balancePath(address, asset)
			switch balance.Sign() {
			case 0:
				db.Remove(path)
			case 1:
				db.Set(path, balance.Bytes())
			default:
				panic(fmt.Sprintf("Address %s has negative balance of %s: %s", address, asset.Symbol(), balance))
			}
		}
		account.dirtyBalances = map[types.AssetID]struct{}{}

		// save allowances
		for _, key := range account.getOrderedDirtyAllowances() {
			allowance := account.allowances[key]
			path := allowancePath(address, key)
			if allowance.Sign() == 0 {
				db.Remove(path)
				continue
			}
			db.Set(path, allowance.Bytes())
		}
		account.dirtyAllowances = map[allowanceKey]struct{}{}
	}

	return nil
}

func accountPath(address types.Address) []byte {
	path := []byte{mainPrefix}
	return append(path, address[:]...)
}

func balancePath(address types.Address, asset types.AssetID) []byte {
	path := accountPath(address)
	path = append(path, balancePrefix)
	return append(path, asset.Bytes()...)
}

func allowancePath(owner types.Address, key allowanceKey) []byte {
	path := accountPath(owner)
	path = append(path, allowancePrefix)
	path = append(path, key.Spender[:]...)
	return append(path, key.Asset.Bytes()...)
}

func (a *Accounts) getOrderedDirtyAccounts() []types.Address {
	a.lock.RLock()
	keys := make([]types.Address, 0, len(a.dirty))
	for k := range a.dirty {
		keys = append(keys, k)
	}
	a.lock.RUnlock()

	sort.SliceStable(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) == 1
	})

	return keys
}

func (a *Accounts) getFromMap(address types.Address) *Model {
	a.lock.RLock()
	defer a.lock.RUnlock()

	return a.list[address]
}

func (a *Accounts) setToMap(address types.Address, model *Model) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.list[address] = model
}

func (a *Accounts) markDirty(address types.Address) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.dirty[address] = struct{}{}
}

func (a *Accounts) getOrNew(address types.Address) *Model {
	if account := a.getFromMap(address); account != nil {
		return account
	}

	account := newModel(address, a.markDirty)

	if tree := a.immutableTree(); tree != nil {
		_, enc := tree.Get(accountPath(address))
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, account); err != nil {
				panic(fmt.Sprintf("failed to decode account at address %s: %s", address.String(), err))
			}
		}
	}

	a.setToMap(address, account)
	return account
}

func (a *Accounts) GetNonce(address types.Address) uint64 {
	account := a.getOrNew(address)

	account.lock.RLock()
	defer account.lock.RUnlock()

	return account.Nonce
}

func (a *Accounts) SetNonce(address types.Address, nonce uint64) {
	a.getOrNew(address).setNonce(nonce)
}

// GetBalance returns a copy of the balance.
func (a *Accounts) GetBalance(address types.Address, asset types.AssetID) *big.Int {
	return new(big.Int).Set(a.balance(address, asset))
}

func (a *Accounts) balance(address types.Address, asset types.AssetID) *big.Int {
	account := a.getOrNew(address)

	account.lock.RLock()
	balance, ok := account.balances[asset]
	account.lock.RUnlock()
	if ok {
		return balance
	}

	balance = big.NewInt(0)
	if tree := a.immutableTree(); tree != nil {
		_, enc := tree.Get(balancePath(address, asset))
		if len(enc) != 0 {
			balance.SetBytes(enc)
		}
	}

	account.lock.Lock()
	account.balances[asset] = balance
	account.lock.Unlock()

	return balance
}

func (a *Accounts) GetBalances(address types.Address) map[types.AssetID]*big.Int {
	balances := map[types.AssetID]*big.Int{}
	for _, asset := range types.Assets() {
		balances[asset] = a.GetBalance(address, asset)
	}

	return balances
}

func (a *Accounts) SetBalance(address types.Address, asset types.AssetID, amount *big.Int) {
	balance := a.balance(address, asset)
	a.bus.Checker().AddBalance(asset, new(big.Int).Sub(amount, balance))
	a.getOrNew(address).setBalance(asset, new(big.Int).Set(amount))
}

func (a *Accounts) AddBalance(address types.Address, asset types.AssetID, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	balance := a.balance(address, asset)
	a.bus.Checker().AddBalance(asset, amount)
	a.getOrNew(address).setBalance(asset, new(big.Int).Add(balance, amount))
}

// SubBalance fails without changes when the balance is too low.
func (a *Accounts) SubBalance(address types.Address, asset types.AssetID, amount *big.Int) error {
	if err := a.CheckBalance(address, asset, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}

	balance := a.balance(address, asset)
	a.bus.Checker().AddBalance(asset, new(big.Int).Neg(amount))
	a.getOrNew(address).setBalance(asset, new(big.Int).Sub(balance, amount))
	return nil
}

// CheckBalance reports whether address holds at least amount.
func (a *Accounts) CheckBalance(address types.Address, asset types.AssetID, amount *big.Int) error {
	if balance := a.balance(address, asset); balance.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", address, balance, asset.Symbol(), amount)
	}
	return nil
}

func (a *Accounts) Transfer(from, to types.Address, asset types.AssetID, amount *big.Int) error {
	if err := a.SubBalance(from, asset, amount); err != nil {
		return err
	}
	a.AddBalance(to, asset, amount)
	return nil
}

// GetAllowance returns a copy of what spender may still take from owner.
func (a *Accounts) GetAllowance(owner, spender types.Address, asset types.AssetID) *big.Int {
	return new(big.Int).Set(a.allowance(owner, allowanceKey{Spender: spender, Asset: asset}))
}

func (a *Accounts) allowance(owner types.Address, key allowanceKey) *big.Int {
	account := a.getOrNew(owner)

	account.lock.RLock()
	allowance, ok := account.allowances[key]
	account.lock.RUnlock()
	if ok {
		return allowance
	}

	allowance = big.NewInt(0)
	if tree := a.immutableTree(); tree != nil {
		_, enc := tree.Get(allowancePath(owner, key))
		if len(enc) != 0 {
			allowance.SetBytes(enc)
		}
	}

	account.lock.Lock()
	account.allowances[key] = allowance
	account.lock.Unlock()

	return allowance
}

// Approve replaces the allowance of spender.
func (a *Accounts) Approve(owner, spender types.Address, asset types.AssetID, amount *big.Int) {
	a.getOrNew(owner).setAllowance(allowanceKey{Spender: spender, Asset: asset}, new(big.Int).Set(amount))
}

// CheckAllowance reports whether spender may take amount from owner.
func (a *Accounts) CheckAllowance(owner, spender types.Address, asset types.AssetID, amount *big.Int) error {
	if allowance := a.allowance(owner, allowanceKey{Spender: spender, Asset: asset}); allowance.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInsufficientAllowance, "%s allowed %s %s to %s, needs %s", owner, allowance, asset.Symbol(), spender, amount)
	}
	return nil
}

// SpendAllowance lowers the allowance of spender by amount.
func (a *Accounts) SpendAllowance(owner, spender types.Address, asset types.AssetID, amount *big.Int) error {
	if err := a.CheckAllowance(owner, spender, asset, amount); err != nil {
		return err
	}

	key := allowanceKey{Spender: spender, Asset: asset}
	allowance := a.allowance(owner, key)
	a.getOrNew(owner).setAllowance(key, new(big.Int).Sub(allowance, amount))
	return nil
}

// Export appends every committed account to state.
func (a *Accounts) Export(state *types.AppState) {
	byAddress := map[types.Address]*types.Account{}
	var order []types.Address

	get := func(address types.Address) *types.Account {
		if acc, ok := byAddress[address]; ok {
			return acc
		}
		acc := &types.Account{Address: address}
		byAddress[address] = acc
		order = append(order, address)
		return acc
	}

	a.immutableTree().IterateRange([]byte{mainPrefix}, []byte{mainPrefix + 1}, true, func(key []byte, value []byte) bool {
		address := types.BytesToAddress(key[1 : 1+types.AddressLength])
		rest := key[1+types.AddressLength:]

		switch {
		case len(rest) == 0:
			model := &Model{}
			if err := rlp.DecodeBytes(value, model); err != nil {
				panic(fmt.Sprintf("failed to decode account at address %s: %s", address, err))
			}
			get(address).Nonce = model.Nonce
		case rest[0] == balancePrefix && len(rest) == 2:
			acc := get(address)
			acc.Balance = append(acc.Balance, types.Balance{
				Asset: types.AssetID(rest[1]),
				Value: big.NewInt(0).SetBytes(value).String(),
			})
		case rest[0] == allowancePrefix && len(rest) == 2+types.AddressLength:
			acc := get(address)
			acc.Allowances = append(acc.Allowances, types.Allowance{
				Spender: types.BytesToAddress(rest[1 : 1+types.AddressLength]),
				Asset:   types.AssetID(rest[1+types.AddressLength]),
				Value:   big.NewInt(0).SetBytes(value).String(),
			})
		}

		return false
	})

	for _, address := range order {
		state.Accounts = append(state.Accounts, *byAddress[address])
	}
}
