package rewarder

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
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
)

const mainPrefix = byte('r')
const poolPrefix = byte('p')
const positionPrefix = byte('a')

// WeightSource reports the current weight of an account in some domain:
// staked token balance, cumulative tiles placed and so on.
type WeightSource interface {
	Weight(account types.Address) *big.Int
}

type RRewarders interface {
	Export(state *types.AppState)
	GetWeight(id types.RewarderID, account types.Address) *big.Int
	GetTotalWeight(id types.RewarderID) *big.Int
	GetPool(id types.RewarderID, asset types.AssetID) Pool
	RewardRate(id types.RewarderID, asset types.AssetID, now uint64) *big.Int
	Earned(id types.RewarderID, account types.Address, asset types.AssetID, now uint64) (*big.Int, error)
	RewardPerWeight(id types.RewarderID, asset types.AssetID, now uint64) (*big.Int, error)
	CheckNotify(id types.RewarderID, asset types.AssetID, amount *big.Int, duration, now uint64) error
	CheckNotifyFrom(id types.RewarderID, funder types.Address, asset types.AssetID, amount *big.Int, duration, now uint64) error
}

// Rewarders is the time-weighted reward engine. Every instance keeps one
// accumulator per reward asset and settles an account before its weight
// changes or it claims.
type Rewarders struct {
	list  map[types.RewarderID]*Model
	dirty map[types.RewarderID]struct{}

	bus *bus.Bus
	db  atomic.Value

	lock sync.RWMutex
}

func NewRewarders(stateBus *bus.Bus, db *iavl.ImmutableTree) *Rewarders {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	r := &Rewarders{
		bus:   stateBus,
		db:    immutableTree,
		list:  map[types.RewarderID]*Model{},
		dirty: map[types.RewarderID]struct{}{},
	}
	r.bus.SetRewarders(r)

	return r
}

func (r *Rewarders) immutableTree() *iavl.ImmutableTree {
	db := r.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (r *Rewarders) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	r.db.Store(immutableTree)
}

func modelPath(id types.RewarderID) []byte {
	return []byte{mainPrefix, byte(id)}
}

func poolPath(id types.RewarderID, asset types.AssetID) []byte {
	return []byte{mainPrefix, byte(id), poolPrefix, byte(asset)}
}

func positionPath(id types.RewarderID, account types.Address) []byte {
	return append([]byte{mainPrefix, byte(id), positionPrefix}, account[:]...)
}

func (r *Rewarders) Commit(db *iavl.MutableTree, version int64) error {
	for _, id := range r.getOrderedDirty() {
		m := r.getFromMap(id)

		r.lock.Lock()
		delete(r.dirty, id)
		r.lock.Unlock()

		if m.isDirty {
			m.isDirty = false
			data, err := rlp.EncodeToBytes(m)
			if err != nil {
				return fmt.Errorf("can't encode rewarder %s: %v", id, err)
			}
			db.Set(modelPath(id), data)
		}

		assets := make([]types.AssetID, 0, len(m.dirtyPools))
		for asset := range m.dirtyPools {
			assets = append(assets, asset)
		}
		sort.SliceStable(assets, func(i, j int) bool { return assets[i] < assets[j] })
		for _, asset := range assets {
			data, err := rlp.EncodeToBytes(m.pools[asset])
			if err != nil {
				return fmt.Errorf("can't encode pool %s/%s: %v", id, asset, err)
			}
			db.Set(poolPath(id, asset), data)
		}
		m.dirtyPools = map[types.AssetID]struct{}{}

		for _, account := range sortedAccounts(m.dirtyPositions) {
			position := m.positions[account]
			if position.isEmpty() {
				db.Remove(positionPath(id, account))
				continue
			}
			data, err := rlp.EncodeToBytes(position)
			if err != nil {
				return fmt.Errorf("can't encode position %s/%s: %v", id, account, err)
			}
			db.Set(positionPath(id, account), data)
		}
		m.dirtyPositions = map[types.Address]struct{}{}
	}

	return nil
}

func sortedAccounts(set map[types.Address]struct{}) []types.Address {
	accounts := make([]types.Address, 0, len(set))
	for account := range set {
		accounts = append(accounts, account)
	}
	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].Compare(accounts[j]) < 0 })
	return accounts
}

func (r *Rewarders) getOrderedDirty() []types.RewarderID {
	r.lock.RLock()
	keys := make([]types.RewarderID, 0, len(r.dirty))
	for k := range r.dirty {
		keys = append(keys, k)
	}
	r.lock.RUnlock()

	sort.SliceStable(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (r *Rewarders) getFromMap(id types.RewarderID) *Model {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.list[id]
}

func (r *Rewarders) markDirty(id types.RewarderID) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.dirty[id] = struct{}{}
}

func (r *Rewarders) get(id types.RewarderID) *Model {
	if m := r.getFromMap(id); m != nil {
		return m
	}

	m := newModel(id)
	if tree := r.immutableTree(); tree != nil {
		_, enc := tree.Get(modelPath(id))
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, m); err != nil {
				panic(fmt.Sprintf("failed to decode rewarder %s: %s", id, err))
			}
		}
	}

	r.lock.Lock()
	r.list[id] = m
	r.lock.Unlock()

	return m
}

func (r *Rewarders) pool(id types.RewarderID, asset types.AssetID) *Pool {
	m := r.get(id)
	if pool, ok := m.pools[asset]; ok {
		return pool
	}

	pool := newPool()
	if tree := r.immutableTree(); tree != nil {
		_, enc := tree.Get(poolPath(id, asset))
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, pool); err != nil {
				panic(fmt.Sprintf("failed to decode pool %s/%s: %s", id, asset, err))
			}
		}
	}

	m.pools[asset] = pool
	return pool
}

func (r *Rewarders) position(id types.RewarderID, account types.Address) *Position {
	m := r.get(id)
	if position, ok := m.positions[account]; ok {
		return position
	}

	position := newPosition()
	if tree := r.immutableTree(); tree != nil {
		_, enc := tree.Get(positionPath(id, account))
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, position); err != nil {
				panic(fmt.Sprintf("failed to decode position %s/%s: %s", id, account, err))
			}
		}
	}

	m.positions[account] = position
	return position
}

func (r *Rewarders) setPool(id types.RewarderID, asset types.AssetID, pool *Pool) {
	r.get(id).setPool(asset, pool)
	r.markDirty(id)
}

func (r *Rewarders) setPosition(id types.RewarderID, account types.Address, position *Position) {
	r.get(id).setPosition(account, position)
	r.markDirty(id)
}

func (r *Rewarders) setTotalWeight(id types.RewarderID, weight *big.Int) {
	r.get(id).setTotalWeight(weight)
	r.markDirty(id)
}

func checkRewarder(id types.RewarderID) error {
	if !id.IsValid() {
		return errors.Wrapf(code.ErrUnknownRewarder, "rewarder %d", id)
	}
	return nil
}

// GetWeight returns a copy of the weight of account.
func (r *Rewarders) GetWeight(id types.RewarderID, account types.Address) *big.Int {
	return new(big.Int).Set(r.position(id, account).Weight)
}

func (r *Rewarders) GetTotalWeight(id types.RewarderID) *big.Int {
	return new(big.Int).Set(r.get(id).TotalWeight)
}

// GetPool returns a snapshot of the stored pool, not settled to any time.
func (r *Rewarders) GetPool(id types.RewarderID, asset types.AssetID) Pool {
	return *r.pool(id, asset).copy()
}

// RewardRate is what the pool releases per second at now, zero once its
// period is over.
func (r *Rewarders) RewardRate(id types.RewarderID, asset types.AssetID, now uint64) *big.Int {
	pool := r.pool(id, asset)
	if now >= pool.PeriodFinish {
		return big.NewInt(0)
	}
	return new(big.Int).Set(pool.Rate)
}

// RewardPerWeight is the accumulator of asset as if settled at now.
func (r *Rewarders) RewardPerWeight(id types.RewarderID, asset types.AssetID, now uint64) (*big.Int, error) {
	pool, err := r.pool(id, asset).settled(r.get(id).TotalWeight, now)
	if err != nil {
		return nil, err
	}
	return pool.RewardPerWeight, nil
}

// Settle advances the accumulator of asset to now. Calling it twice at the
// same instant changes nothing.
func (r *Rewarders) Settle(id types.RewarderID, asset types.AssetID, now uint64) error {
	current := r.pool(id, asset)
	pool, err := current.settled(r.get(id).TotalWeight, now)
	if err != nil {
		return err
	}
	if pool.LastUpdate != current.LastUpdate {
		r.setPool(id, asset, pool)
	}
	return nil
}

// Checkpoint settles every reward asset and moves what account earned since
// its last checkpoint into its pending reward.
func (r *Rewarders) Checkpoint(id types.RewarderID, account types.Address, now uint64) error {
	if err := checkRewarder(id); err != nil {
		return err
	}

	position := r.position(id, account)
	changed := false
	for _, asset := range RewardAssets(id) {
		if err := r.Settle(id, asset, now); err != nil {
			return err
		}
		stored := r.pool(id, asset).RewardPerWeight

		reward := position.reward(asset)
		if reward.Paid.Cmp(stored) == 0 {
			continue
		}

		owed, err := earned(position.Weight, stored, reward.Paid)
		if err != nil {
			return err
		}
		reward.Pending = new(big.Int).Add(reward.Pending, owed)
		reward.Paid = stored
		changed = true
	}

	if changed {
		r.setPosition(id, account, position)
	}
	return nil
}

// Earned is the pending reward of account if it checkpointed at now.
func (r *Rewarders) Earned(id types.RewarderID, account types.Address, asset types.AssetID, now uint64) (*big.Int, error) {
	if err := checkRewarder(id); err != nil {
		return nil, err
	}
	if !isRewardAsset(id, asset) {
		return big.NewInt(0), nil
	}

	stored, err := r.RewardPerWeight(id, asset, now)
	if err != nil {
		return nil, err
	}

	position := r.position(id, account)
	paid, pending := big.NewInt(0), big.NewInt(0)
	for _, reward := range position.Rewards {
		if reward.Asset == asset {
			paid, pending = reward.Paid, reward.Pending
		}
	}

	owed, err := earned(position.Weight, stored, paid)
	if err != nil {
		return nil, err
	}
	return owed.Add(owed, pending), nil
}

// SetWeight checkpoints account and then replaces its weight.
func (r *Rewarders) SetWeight(id types.RewarderID, account types.Address, weight *big.Int, now uint64) error {
	if err := r.Checkpoint(id, account, now); err != nil {
		return err
	}

	position := r.position(id, account)
	if position.Weight.Cmp(weight) == 0 {
		return nil
	}

	total := new(big.Int).Sub(r.get(id).TotalWeight, position.Weight)
	total.Add(total, weight)
	if total.Sign() < 0 {
		return errors.Wrapf(code.ErrInvariant, "rewarder %s total weight below zero", id)
	}

	position.Weight = new(big.Int).Set(weight)
	r.setPosition(id, account, position)
	r.setTotalWeight(id, total)

	return nil
}

// Sync sets the weight of account to whatever source reports now.
func (r *Rewarders) Sync(id types.RewarderID, source WeightSource, account types.Address, now uint64) error {
	return r.SetWeight(id, account, source.Weight(account), now)
}

// CheckNotify validates a notification without the funding side.
func (r *Rewarders) CheckNotify(id types.RewarderID, asset types.AssetID, amount *big.Int, duration, now uint64) error {
	_, err := r.prepareNotify(id, asset, amount, duration, now)
	return err
}

// CheckNotifyFrom validates a notification including the funder balance.
func (r *Rewarders) CheckNotifyFrom(id types.RewarderID, funder types.Address, asset types.AssetID, amount *big.Int, duration, now uint64) error {
	if err := r.CheckNotify(id, asset, amount, duration, now); err != nil {
		return err
	}
	if balance := r.bus.Accounts().GetBalance(funder, asset); balance.Cmp(amount) < 0 {
		return errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, needs %s", funder, balance, asset.Symbol(), amount)
	}
	return nil
}

func (r *Rewarders) prepareNotify(id types.RewarderID, asset types.AssetID, amount *big.Int, duration, now uint64) (*Pool, error) {
	if err := checkRewarder(id); err != nil {
		return nil, err
	}
	if !isRewardAsset(id, asset) {
		return nil, errors.Wrapf(code.ErrUnknownAsset, "%s is not a reward asset of rewarder %s", asset.Symbol(), id)
	}
	if duration == 0 || now+duration < now {
		return nil, errors.Wrapf(code.ErrInvalidDuration, "duration %d", duration)
	}
	if amount.Sign() == 0 {
		return nil, code.ErrZeroAmount
	}

	pool, err := r.pool(id, asset).settled(r.get(id).TotalWeight, now)
	if err != nil {
		return nil, code.FromMath(err)
	}
	if now < pool.LastUpdate {
		now = pool.LastUpdate
	}

	pool, err = pool.notified(amount, duration, now)
	if err != nil {
		return nil, code.FromMath(err)
	}
	if pool.Rate.Sign() == 0 {
		return nil, errors.Wrapf(code.ErrRewardTooSmall, "%s over %d seconds", amount, duration)
	}

	return pool, nil
}

// NotifyReward funds asset with amount from funder, released linearly over
// duration seconds starting at now.
func (r *Rewarders) NotifyReward(id types.RewarderID, funder types.Address, asset types.AssetID, amount *big.Int, duration, now uint64) error {
	if err := r.CheckNotifyFrom(id, funder, asset, amount, duration, now); err != nil {
		return err
	}

	pool, err := r.prepareNotify(id, asset, amount, duration, now)
	if err != nil {
		return err
	}

	if err := r.bus.Accounts().Transfer(funder, id.Address(), asset, amount); err != nil {
		return err
	}
	r.setPool(id, asset, pool)

	r.bus.AddEvent(&eventsdb.RewardNotifyEvent{
		Funder:       funder,
		Rewarder:     id.String(),
		Asset:        asset.Symbol(),
		Amount:       amount.String(),
		Rate:         pool.Rate.String(),
		PeriodFinish: pool.PeriodFinish,
	})

	return nil
}

// Claim pays out the pending reward of account in asset and returns it.
func (r *Rewarders) Claim(id types.RewarderID, account types.Address, asset types.AssetID, now uint64) (*big.Int, error) {
	if err := checkRewarder(id); err != nil {
		return nil, err
	}
	if !isRewardAsset(id, asset) {
		return nil, errors.Wrapf(code.ErrUnknownAsset, "%s is not a reward asset of rewarder %s", asset.Symbol(), id)
	}

	if err := r.Checkpoint(id, account, now); err != nil {
		return nil, err
	}

	position := r.position(id, account)
	reward := position.reward(asset)
	owed := reward.Pending
	if owed.Sign() == 0 {
		return big.NewInt(0), nil
	}

	pool := r.pool(id, asset)
	if pool.Balance.Cmp(owed) < 0 {
		return nil, errors.Wrapf(code.ErrInsufficientPoolBalance, "rewarder %s owes %s %s, holds %s", id, owed, asset.Symbol(), pool.Balance)
	}
	if err := r.bus.Accounts().Transfer(id.Address(), account, asset, owed); err != nil {
		return nil, errors.Wrapf(code.ErrInvariant, "rewarder %s account: %s", id, err)
	}

	updated := pool.copy()
	updated.Balance = new(big.Int).Sub(pool.Balance, owed)
	updated.Claimed = new(big.Int).Add(pool.Claimed, owed)
	r.setPool(id, asset, updated)

	reward.Pending = big.NewInt(0)
	r.setPosition(id, account, position)

	r.bus.AddEvent(&eventsdb.RewardClaimEvent{
		Address:  account,
		Rewarder: id.String(),
		Asset:    asset.Symbol(),
		Amount:   owed.String(),
	})

	return owed, nil
}

// ClaimAll claims every reward asset of the rewarder.
func (r *Rewarders) ClaimAll(id types.RewarderID, account types.Address, now uint64) (map[types.AssetID]*big.Int, error) {
	if err := checkRewarder(id); err != nil {
		return nil, err
	}

	result := map[types.AssetID]*big.Int{}
	for _, asset := range RewardAssets(id) {
		amount, err := r.Claim(id, account, asset, now)
		if err != nil {
			return nil, err
		}
		result[asset] = amount
	}
	return result, nil
}
