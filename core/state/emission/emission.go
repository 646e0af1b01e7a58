package emission

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/fixed"
	"github.com/tilemint/tilemint-node/helpers"
)

const mainPrefix = byte('e')

type REmission interface {
	Export(state *types.AppState)
	Initialized() bool
	ActivePeriod() uint64
	Weekly() *big.Int
	EpochCount() uint64
	NextPeriod() uint64
	CheckInitialize(caller types.Address) error
	CheckUpdatePeriod(now uint64) (*Emission, error)
}

// Emission is the outcome of one period update. Shares that are too small
// to stream over an epoch are not minted.
type Emission struct {
	ActivePeriod uint64
	Amount       *big.Int
	GridShare    *big.Int
	TokenShare   *big.Int
	NextWeekly   *big.Int
}

// Controller emits OTOKEN once per epoch with a decaying schedule and
// splits every emission between the grid and the staking rewarders.
type Controller struct {
	model   *Model
	isDirty bool

	bus *bus.Bus
	db  atomic.Value

	lock sync.Mutex
}

func NewController(stateBus *bus.Bus, db *iavl.ImmutableTree) *Controller {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	return &Controller{bus: stateBus, db: immutableTree}
}

func (c *Controller) immutableTree() *iavl.ImmutableTree {
	db := c.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (c *Controller) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	c.db.Store(immutableTree)
}

func (c *Controller) Commit(db *iavl.MutableTree, version int64) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.isDirty {
		return nil
	}
	c.isDirty = false

	data, err := rlp.EncodeToBytes(c.model)
	if err != nil {
		return fmt.Errorf("can't encode emission model: %s", err)
	}
	db.Set([]byte{mainPrefix}, data)

	return nil
}

func (c *Controller) markDirty() {
	c.isDirty = true
}

func (c *Controller) get() *Model {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.model != nil {
		return c.model
	}

	model := &Model{Weekly: big.NewInt(0)}
	if tree := c.immutableTree(); tree != nil {
		_, enc := tree.Get([]byte{mainPrefix})
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, model); err != nil {
				panic(fmt.Sprintf("failed to decode emission model: %s", err))
			}
		}
	}
	model.markDirty = c.markDirty

	c.model = model
	return c.model
}

func (c *Controller) Initialized() bool {
	return c.get().Initialized
}

func (c *Controller) ActivePeriod() uint64 {
	return c.get().ActivePeriod
}

// Weekly is the amount the next update emits.
func (c *Controller) Weekly() *big.Int {
	return new(big.Int).Set(c.get().Weekly)
}

func (c *Controller) EpochCount() uint64 {
	return c.get().EpochCount
}

// NextPeriod is the first instant UpdatePeriod emits at.
func (c *Controller) NextPeriod() uint64 {
	return c.get().ActivePeriod + c.bus.App().Params().EpochDuration
}

func (c *Controller) CheckInitialize(caller types.Address) error {
	if owner := c.bus.App().Owner(); owner.IsZero() || owner != caller {
		return errors.Wrapf(code.ErrNotOwner, "%s", caller)
	}
	if c.get().Initialized {
		return code.ErrAlreadyInitialized
	}
	if c.bus.App().Params().EpochDuration == 0 {
		return errors.Wrap(code.ErrInvalidDuration, "epoch duration is zero")
	}
	return nil
}

// Initialize starts the schedule at the epoch boundary at or before now.
func (c *Controller) Initialize(caller types.Address, now uint64) error {
	if err := c.CheckInitialize(caller); err != nil {
		return err
	}

	params := c.bus.App().Params()
	epoch := params.EpochDuration
	c.get().initialize(now/epoch*epoch, params.InitialEmission)

	return nil
}

// CheckUpdatePeriod computes the emission due at now. It returns nil while
// the current epoch has not elapsed.
func (c *Controller) CheckUpdatePeriod(now uint64) (*Emission, error) {
	model := c.get()
	if !model.Initialized {
		return nil, code.ErrNotInitialized
	}

	params := c.bus.App().Params()
	epoch := params.EpochDuration
	if now < model.ActivePeriod+epoch {
		return nil, nil
	}

	decayed, err := fixed.MulDiv(model.Weekly, big.NewInt(int64(params.DecayBps)), big.NewInt(fixed.MaxBps))
	if err != nil {
		return nil, code.FromMath(err)
	}

	result := &Emission{
		ActivePeriod: now / epoch * epoch,
		Amount:       big.NewInt(0),
		NextWeekly:   fixed.Max(decayed, params.TailEmission),
	}

	gridShare, err := fixed.Bps(model.Weekly, params.GridShareBps)
	if err != nil {
		return nil, code.FromMath(err)
	}
	tokenShare := new(big.Int).Sub(model.Weekly, gridShare)

	if result.GridShare, err = c.streamable(types.RewarderGridPlacement, gridShare, epoch, now); err != nil {
		return nil, err
	}
	if result.TokenShare, err = c.streamable(types.RewarderTokenStaking, tokenShare, epoch, now); err != nil {
		return nil, err
	}
	result.Amount.Add(result.GridShare, result.TokenShare)

	if _, err := fixed.Add(c.bus.Coins().GetVolume(types.AssetOption), result.Amount); err != nil {
		return nil, code.FromMath(err)
	}

	return result, nil
}

// streamable returns share, or zero when the rewarder cannot stream it.
func (c *Controller) streamable(id types.RewarderID, share *big.Int, duration, now uint64) (*big.Int, error) {
	if share.Sign() == 0 {
		return big.NewInt(0), nil
	}

	err := c.bus.Rewarders().CheckNotify(id, types.AssetOption, share, duration, now)
	if errors.Is(err, code.ErrRewardTooSmall) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return share, nil
}

// UpdatePeriod emits the weekly amount once the epoch has elapsed. However
// many epochs passed, a single emission is made. It returns nil when there
// was nothing to emit.
func (c *Controller) UpdatePeriod(caller types.Address, now uint64) (*Emission, error) {
	result, err := c.CheckUpdatePeriod(now)
	if err != nil || result == nil {
		return nil, err
	}

	if err := c.bus.Coins().Mint(types.EmissionAddress, types.AssetOption, result.Amount); err != nil {
		return nil, err
	}

	epoch := c.bus.App().Params().EpochDuration
	rewarders := c.bus.Rewarders()
	if result.GridShare.Sign() > 0 {
		if err := rewarders.NotifyReward(types.RewarderGridPlacement, types.EmissionAddress, types.AssetOption, result.GridShare, epoch, now); err != nil {
			return nil, err
		}
	}
	if result.TokenShare.Sign() > 0 {
		if err := rewarders.NotifyReward(types.RewarderTokenStaking, types.EmissionAddress, types.AssetOption, result.TokenShare, epoch, now); err != nil {
			return nil, err
		}
	}

	c.get().advance(result.ActivePeriod, result.NextWeekly)

	c.bus.AddEvent(&eventsdb.EmissionEvent{
		Address:      caller,
		ActivePeriod: result.ActivePeriod,
		Amount:       result.Amount.String(),
		GridShare:    result.GridShare.String(),
		TokenShare:   result.TokenShare.String(),
	})

	return result, nil
}

func (c *Controller) Import(state *types.AppState) {
	model := c.get()
	model.Initialized = state.Emission.Initialized
	model.ActivePeriod = state.Emission.ActivePeriod
	model.Weekly = helpers.StringToBigIntOrZero(state.Emission.Weekly)
	model.EpochCount = state.Emission.EpochCount
	model.markDirty()
}

func (c *Controller) Export(state *types.AppState) {
	model := c.get()
	state.Emission = types.EmissionInfo{
		Initialized:  model.Initialized,
		ActivePeriod: model.ActivePeriod,
		Weekly:       model.Weekly.String(),
		EpochCount:   model.EpochCount,
	}
}
