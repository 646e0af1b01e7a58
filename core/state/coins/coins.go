package coins

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
	"github.com/tilemint/tilemint-node/fixed"
)

const mainPrefix = byte('c')

type RCoins interface {
	Export(state *types.AppState)
	GetVolume(asset types.AssetID) *big.Int
}

// Coins is the asset registry: the total volume of every asset in existence.
type Coins struct {
	list  map[types.AssetID]*Model
	dirty map[types.AssetID]struct{}

	bus *bus.Bus
	db  atomic.Value

	lock sync.RWMutex
}

func NewCoins(stateBus *bus.Bus, db *iavl.ImmutableTree) *Coins {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	coins := &Coins{
		bus:   stateBus,
		db:    immutableTree,
		list:  map[types.AssetID]*Model{},
		dirty: map[types.AssetID]struct{}{},
	}
	coins.bus.SetCoins(coins)

	return coins
}

func (c *Coins) immutableTree() *iavl.ImmutableTree {
	db := c.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (c *Coins) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	c.db.Store(immutableTree)
}

func (c *Coins) Commit(db *iavl.MutableTree, version int64) error {
	for _, asset := range c.getOrderedDirty() {
		coin := c.getFromMap(asset)

		c.lock.Lock()
		delete(c.dirty, asset)
		c.lock.Unlock()

		data, err := rlp.EncodeToBytes(coin)
		if err != nil {
			return fmt.Errorf("can't encode object at %d: %v", asset, err)
		}

		db.Set([]byte{mainPrefix, byte(asset)}, data)
	}

	return nil
}

func (c *Coins) getOrderedDirty() []types.AssetID {
	c.lock.RLock()
	keys := make([]types.AssetID, 0, len(c.dirty))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	c.lock.RUnlock()

	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})

	return keys
}

func (c *Coins) getFromMap(asset types.AssetID) *Model {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.list[asset]
}

func (c *Coins) markDirty(asset types.AssetID) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.dirty[asset] = struct{}{}
}

func (c *Coins) get(asset types.AssetID) *Model {
	if coin := c.getFromMap(asset); coin != nil {
		return coin
	}

	coin := &Model{Volume: big.NewInt(0)}
	if tree := c.immutableTree(); tree != nil {
		_, enc := tree.Get([]byte{mainPrefix, byte(asset)})
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, coin); err != nil {
				panic(fmt.Sprintf("failed to decode coin at %d: %s", asset, err))
			}
		}
	}
	coin.asset = asset
	coin.markDirty = c.markDirty

	c.lock.Lock()
	c.list[asset] = coin
	c.lock.Unlock()

	return coin
}

func (c *Coins) GetVolume(asset types.AssetID) *big.Int {
	return new(big.Int).Set(c.get(asset).Volume)
}

func (c *Coins) SetVolume(asset types.AssetID, volume *big.Int) {
	coin := c.get(asset)
	c.bus.Checker().AddVolume(asset, new(big.Int).Sub(volume, coin.Volume))
	coin.setVolume(volume)
}

// CheckMint reports whether amount more of asset fits the 256-bit range.
func (c *Coins) CheckMint(asset types.AssetID, amount *big.Int) error {
	if !asset.IsValid() {
		return errors.Wrapf(code.ErrUnknownAsset, "asset %d", asset)
	}
	_, err := fixed.Add(c.get(asset).Volume, amount)
	return code.FromMath(err)
}

// Mint creates amount of asset on the balance of to.
func (c *Coins) Mint(to types.Address, asset types.AssetID, amount *big.Int) error {
	if err := c.CheckMint(asset, amount); err != nil {
		return err
	}

	c.get(asset).addVolume(amount)
	c.bus.Checker().AddVolume(asset, amount)
	c.bus.Accounts().AddBalance(to, asset, amount)
	return nil
}

// Burn destroys amount of asset held by from.
func (c *Coins) Burn(from types.Address, asset types.AssetID, amount *big.Int) error {
	if !asset.IsValid() {
		return errors.Wrapf(code.ErrUnknownAsset, "asset %d", asset)
	}
	if err := c.bus.Accounts().SubBalance(from, asset, amount); err != nil {
		return err
	}

	c.get(asset).subVolume(amount)
	c.bus.Checker().AddVolume(asset, new(big.Int).Neg(amount))
	return nil
}

func (c *Coins) Export(state *types.AppState) {
	for _, asset := range types.Assets() {
		state.Coins = append(state.Coins, types.Coin{
			Asset:  asset,
			Symbol: asset.Symbol(),
			Volume: c.GetVolume(asset).String(),
		})
	}
}
