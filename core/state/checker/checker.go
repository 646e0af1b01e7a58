package checker

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
)

// Checker sums every balance change and every volume change per asset
// within a block. Both sums must match at commit.
type Checker struct {
	delta       map[types.AssetID]*big.Int
	volumeDelta map[types.AssetID]*big.Int

	lock sync.RWMutex
}

func NewChecker(bus *bus.Bus) *Checker {
	checker := &Checker{
		delta:       map[types.AssetID]*big.Int{},
		volumeDelta: map[types.AssetID]*big.Int{},
	}
	bus.SetChecker(checker)

	return checker
}

func add(m map[types.AssetID]*big.Int, asset types.AssetID, value *big.Int) {
	current, exists := m[asset]
	if !exists {
		current = big.NewInt(0)
		m[asset] = current
	}

	current.Add(current, value)
}

// AddBalance records a balance change of value, which may be negative.
func (c *Checker) AddBalance(asset types.AssetID, value *big.Int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	add(c.delta, asset, value)
}

// AddVolume records a supply change of value, which may be negative.
func (c *Checker) AddVolume(asset types.AssetID, value *big.Int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	add(c.volumeDelta, asset, value)
}

// Reset clears the sums after a commit.
func (c *Checker) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.delta = map[types.AssetID]*big.Int{}
	c.volumeDelta = map[types.AssetID]*big.Int{}
}

func (c *Checker) Check() error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	assets := make([]types.AssetID, 0, len(c.delta)+len(c.volumeDelta))
	seen := map[types.AssetID]struct{}{}
	for _, m := range []map[types.AssetID]*big.Int{c.delta, c.volumeDelta} {
		for asset := range m {
			if _, ok := seen[asset]; !ok {
				seen[asset] = struct{}{}
				assets = append(assets, asset)
			}
		}
	}
	sort.SliceStable(assets, func(i, j int) bool { return assets[i] < assets[j] })

	for _, asset := range assets {
		delta, volume := c.delta[asset], c.volumeDelta[asset]
		if delta == nil {
			delta = big.NewInt(0)
		}
		if volume == nil {
			volume = big.NewInt(0)
		}

		if delta.Cmp(volume) != 0 {
			return fmt.Errorf("invariants error on asset %s: %s", asset.Symbol(), new(big.Int).Sub(volume, delta).String())
		}
	}

	return nil
}
