package minter

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	abciTypes "github.com/tendermint/tendermint/abci/types"
	tmlog "github.com/tendermint/tendermint/libs/log"
	"github.com/tilemint/tilemint-node/cmd/utils"
	"github.com/tilemint/tilemint-node/config"
	"github.com/tilemint/tilemint-node/core/appdb"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/statistics"
	"github.com/tilemint/tilemint-node/core/transaction"
	"github.com/tilemint/tilemint-node/genesis"
	"github.com/tilemint/tilemint-node/version"
)

// Blockchain is the ABCI application of a tilemint node
type Blockchain struct {
	abciTypes.BaseApplication

	logger tmlog.Logger

	executor      *transaction.Executor
	statisticData *statistics.Data

	appDB        *appdb.AppDB
	eventsDB     eventsdb.IEventsDB
	stateDeliver *state.State
	stateCheck   *state.CheckState
	height       uint64 // last committed height
	blockHeight  uint64 // height of the block being delivered
	blockTime    uint64 // header time of the block being delivered
	lastTime     uint64 // header time of the last committed block

	// currentMempool is responsive for prevent sending multiple transactions from one address in one block
	currentMempool *sync.Map

	lock sync.RWMutex

	haltHeight uint64
	cfg        *config.Config
	storages   *utils.Storage
	stopped    bool
	halted     chan struct{}
}

// NewTilemintBlockchain creates Blockchain instance, should be only called once
func NewTilemintBlockchain(storages *utils.Storage, cfg *config.Config, logger tmlog.Logger) *Blockchain {
	// Initiate Application DB. Used for persisting data like current block, block times, etc.
	applicationDB := appdb.NewAppDB(storages.GetTilemintHome(), cfg)

	var eventsDB eventsdb.IEventsDB
	if storages.EventDB() != nil {
		eventsDB = eventsdb.NewEventsStore(storages.EventDB())
	}

	if logger == nil {
		logger = tmlog.NewNopLogger()
	}

	app := &Blockchain{
		logger:         logger.With("module", "state"),
		executor:       transaction.NewExecutor(transaction.GetData),
		appDB:          applicationDB,
		storages:       storages,
		eventsDB:       eventsDB,
		currentMempool: &sync.Map{},
		cfg:            cfg,
		haltHeight:     cfg.HaltHeight,
		halted:         make(chan struct{}),
	}

	if applicationDB.LastHeight() != 0 {
		app.initState()
	}

	return app
}

// stateVersion maps a block height to the version of the state tree
// committed at it.
func (blockchain *Blockchain) stateVersion(height uint64) uint64 {
	return height - blockchain.appDB.StartHeight()
}

func (blockchain *Blockchain) initState() {
	currentHeight := blockchain.appDB.LastHeight()
	initialHeight := blockchain.appDB.StartHeight()

	version := uint64(0)
	if currentHeight > initialHeight {
		version = currentHeight - initialHeight
	}

	stateDeliver, err := state.NewState(version,
		blockchain.storages.StateDB(),
		blockchain.eventsDB,
		blockchain.cfg.StateCacheSize,
		blockchain.cfg.KeepLastStates)
	if err != nil {
		panic(err)
	}

	height := currentHeight
	if height == 0 {
		height = initialHeight
	}
	atomic.StoreUint64(&blockchain.height, height)
	blockchain.stateDeliver = stateDeliver
	blockchain.stateCheck = state.NewCheckState(stateDeliver)

	if times := blockchain.appDB.BlockTimes(); len(times) != 0 {
		atomic.StoreUint64(&blockchain.lastTime, times[len(times)-1])
	}
}

// InitChain initialize blockchain with validators and other info. Only called once.
func (blockchain *Blockchain) InitChain(req abciTypes.RequestInitChain) abciTypes.ResponseInitChain {
	genesisState, err := genesis.Validate(req.AppStateBytes)
	if err != nil {
		panic(err)
	}

	initialHeight := uint64(0)
	if req.InitialHeight > 1 {
		initialHeight = uint64(req.InitialHeight) - 1
	}

	blockchain.appDB.SetStartHeight(initialHeight)
	blockchain.initState()

	if err := blockchain.stateDeliver.Import(*genesisState); err != nil {
		panic(err)
	}

	atomic.StoreUint64(&blockchain.lastTime, uint64(req.Time.Unix()))
	blockchain.logger.Info("genesis imported", "owner", genesisState.Owner.String(), "initial_height", initialHeight+1)

	return abciTypes.ResponseInitChain{}
}

// BeginBlock signals the beginning of a block.
func (blockchain *Blockchain) BeginBlock(req abciTypes.RequestBeginBlock) abciTypes.ResponseBeginBlock {
	height := uint64(req.Header.Height)
	if blockchain.stateDeliver == nil {
		blockchain.initState()
	}

	blockchain.StatisticData().SetStartBlock(height, time.Now(), req.Header.Time)
	blockchain.appDB.AddBlockTime(req.Header.Time)

	blockchain.blockHeight = height
	blockchain.blockTime = uint64(req.Header.Time.Unix())
	blockchain.stateDeliver.Bus().SetHeight(height)

	return abciTypes.ResponseBeginBlock{}
}

// EndBlock signals the end of a block, reports the block metrics
func (blockchain *Blockchain) EndBlock(req abciTypes.RequestEndBlock) abciTypes.ResponseEndBlock {
	height := uint64(req.Height)

	if statisticData := blockchain.StatisticData(); statisticData != nil {
		token := blockchain.stateDeliver.Token
		price, err := token.SpotPrice()
		if err != nil {
			blockchain.logger.Error("spot price", "height", height, "err", err)
		}
		statisticData.SetToken(statistics.TokenInfo{
			Supply:  token.TotalSupply(),
			Reserve: token.ReserveReal(),
			Staked:  token.TotalStaked(),
			Price:   price,
		})
		statisticData.SetTilesPlaced(blockchain.stateDeliver.Grids.TotalPlaced())
		statisticData.SetEndBlockDuration(time.Now(), height)
	}

	return abciTypes.ResponseEndBlock{}
}

// Info return application info. Used for synchronization between Tendermint and the application
func (blockchain *Blockchain) Info(_ abciTypes.RequestInfo) (resInfo abciTypes.ResponseInfo) {
	hash := blockchain.appDB.LastHash()
	height := int64(blockchain.appDB.LastHeight())
	return abciTypes.ResponseInfo{
		Version:          version.Version,
		AppVersion:       version.AppVer,
		LastBlockHeight:  height,
		LastBlockAppHash: hash,
	}
}

// DeliverTx deliver a tx for full processing
func (blockchain *Blockchain) DeliverTx(req abciTypes.RequestDeliverTx) abciTypes.ResponseDeliverTx {
	block := transaction.Block{Height: blockchain.blockHeight, Time: blockchain.blockTime}
	response := blockchain.executor.RunTx(blockchain.stateDeliver, req.Tx, block, &sync.Map{}, false)

	return abciTypes.ResponseDeliverTx{
		Code:      response.Code,
		Data:      response.Data,
		Log:       response.Log,
		Info:      response.Info,
		GasWanted: response.GasWanted,
		GasUsed:   response.GasUsed,
		Events: []abciTypes.Event{
			{
				Type:       "tags",
				Attributes: response.Tags,
			},
		},
	}
}

// CheckTx validates a tx for the mempool
func (blockchain *Blockchain) CheckTx(req abciTypes.RequestCheckTx) abciTypes.ResponseCheckTx {
	blockchain.lock.RLock()
	defer blockchain.lock.RUnlock()

	block := transaction.Block{Height: blockchain.Height() + 1, Time: atomic.LoadUint64(&blockchain.lastTime)}
	response := blockchain.executor.RunTx(blockchain.stateCheck, req.Tx, block, blockchain.currentMempool, true)

	return abciTypes.ResponseCheckTx{
		Code:      response.Code,
		Data:      response.Data,
		Log:       response.Log,
		Info:      response.Info,
		GasWanted: response.GasWanted,
		GasUsed:   response.GasUsed,
	}
}

// Commit the state and return the application Merkle root hash
func (blockchain *Blockchain) Commit() abciTypes.ResponseCommit {
	blockchain.lock.Lock()
	defer blockchain.lock.Unlock()

	height := blockchain.blockHeight

	if err := blockchain.stateDeliver.Check(); err != nil {
		panic(errors.Wrap(err, fmt.Sprintf("height %d", height)))
	}

	if blockchain.eventsDB != nil {
		if err := blockchain.eventsDB.CommitEvents(); err != nil {
			panic(err)
		}
	}

	hash, err := blockchain.stateDeliver.Commit()
	if err != nil {
		panic(err)
	}

	if err := blockchain.appDB.SaveCommit(height, hash); err != nil {
		panic(err)
	}

	// events of the block are stored before readers see its height
	atomic.StoreUint64(&blockchain.height, height)
	atomic.StoreUint64(&blockchain.lastTime, blockchain.blockTime)
	blockchain.stateCheck = state.NewCheckState(blockchain.stateDeliver)
	blockchain.currentMempool = &sync.Map{}

	blockchain.logger.Debug("committed", "height", height, "hash", fmt.Sprintf("%X", hash))

	if blockchain.haltHeight > 0 && height >= blockchain.haltHeight {
		blockchain.stop(height)
	}

	return abciTypes.ResponseCommit{
		Data: hash,
	}
}

func (blockchain *Blockchain) stop(height uint64) {
	if blockchain.stopped {
		return
	}
	blockchain.stopped = true
	log.Printf("Application halted at height %d\n", height)
	close(blockchain.halted)
}

// Halted is closed once the node committed its halt height
func (blockchain *Blockchain) Halted() <-chan struct{} {
	return blockchain.halted
}

// Close closes db connections
func (blockchain *Blockchain) Close() error {
	if err := blockchain.appDB.Close(); err != nil {
		return err
	}
	return blockchain.storages.Close()
}

// CurrentState returns the check state the mempool validates against. It
// shares caches with the deliver state and must only be used from the ABCI
// connection.
func (blockchain *Blockchain) CurrentState() *state.CheckState {
	blockchain.lock.RLock()
	defer blockchain.lock.RUnlock()

	return blockchain.stateCheck
}

// CommittedState returns a view of the last committed block with caches of
// its own, so it can be read while the next block is delivered.
func (blockchain *Blockchain) CommittedState() (*state.CheckState, error) {
	blockchain.lock.RLock()
	defer blockchain.lock.RUnlock()

	if blockchain.stateDeliver == nil {
		return nil, errors.New("state is not initialized")
	}
	return state.NewCheckStateForTree(blockchain.stateDeliver.Tree().GetLastImmutable()), nil
}

// AvailableVersions returns all available versions in ascending order
func (blockchain *Blockchain) AvailableVersions() []int {
	blockchain.lock.RLock()
	defer blockchain.lock.RUnlock()

	return blockchain.stateDeliver.Tree().AvailableVersions()
}

// GetStateForHeight returns immutable state of the chain for given height,
// the last committed one for zero
func (blockchain *Blockchain) GetStateForHeight(height uint64) (*state.CheckState, error) {
	if height == 0 {
		return blockchain.CommittedState()
	}
	if height <= blockchain.appDB.StartHeight() || height > blockchain.Height() {
		return nil, errors.Errorf("state at height %d is not available", height)
	}
	return state.NewCheckStateAtHeight(blockchain.stateVersion(height), blockchain.storages.StateDB())
}

// Height returns the height of the last committed block
func (blockchain *Blockchain) Height() uint64 {
	return atomic.LoadUint64(&blockchain.height)
}

// LastBlockTime returns the header time of the last committed block
func (blockchain *Blockchain) LastBlockTime() uint64 {
	return atomic.LoadUint64(&blockchain.lastTime)
}

// GetEventsDB returns current EventsDB
func (blockchain *Blockchain) GetEventsDB() eventsdb.IEventsDB {
	return blockchain.eventsDB
}

// SetStatisticData used for collection statistics
func (blockchain *Blockchain) SetStatisticData(statisticData *statistics.Data) *statistics.Data {
	blockchain.statisticData = statisticData
	return blockchain.statisticData
}

// StatisticData used for collection statistics
func (blockchain *Blockchain) StatisticData() *statistics.Data {
	return blockchain.statisticData
}
