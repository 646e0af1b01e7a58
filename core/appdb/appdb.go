package appdb

import (
	"encoding/binary"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/config"
)

const (
	dbName = "app"

	// BlockTimesKept is how many recent block times survive a restart.
	BlockTimesKept = 4
)

var (
	commitKey      = []byte("commit")
	startHeightKey = []byte("start_height")
)

// AppDB keeps what a restarting node needs besides the state tree: the last
// commit, the height the chain started at and the times of recent blocks.
type AppDB struct {
	db db.DB

	mu          sync.RWMutex
	loaded      bool
	last        commitRecord
	startHeight uint64
}

// commitRecord is written under one key per block so the height, hash and
// block times on disk always belong to the same commit.
type commitRecord struct {
	Height     uint64
	Hash       []byte
	BlockTimes []uint64
}

// NewAppDB opens the app database in the data directory of homeDir.
func NewAppDB(homeDir string, cfg *config.Config) *AppDB {
	database, err := db.NewDB(dbName, db.BackendType(cfg.DBBackend), filepath.Join(homeDir, "data"))
	if err != nil {
		panic(err)
	}
	return NewAppDBWithDB(database)
}

// NewAppDBWithDB wraps an already opened database
func NewAppDBWithDB(database db.DB) *AppDB {
	return &AppDB{db: database}
}

// Close closes db connection
func (a *AppDB) Close() error {
	return a.db.Close()
}

func (a *AppDB) load() {
	a.mu.RLock()
	loaded := a.loaded
	a.mu.RUnlock()
	if loaded {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return
	}

	data, err := a.db.Get(commitKey)
	if err != nil {
		panic(err)
	}
	if len(data) != 0 {
		if err := rlp.DecodeBytes(data, &a.last); err != nil {
			panic(errors.Wrap(err, "decode last commit"))
		}
	}

	start, err := a.db.Get(startHeightKey)
	if err != nil {
		panic(err)
	}
	if len(start) == 8 {
		a.startHeight = binary.BigEndian.Uint64(start)
	}

	a.loaded = true
}

// LastHeight is the height of the last committed block, zero before the first.
func (a *AppDB) LastHeight() uint64 {
	a.load()
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.last.Height
}

// LastHash is the app hash of the last committed block.
func (a *AppDB) LastHash() []byte {
	a.load()
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.last.Hash) == 0 {
		return nil
	}
	return append([]byte(nil), a.last.Hash...)
}

// StartHeight is the height before the first block of this chain: zero for
// a fresh network, the exported height for one restarted from an export.
func (a *AppDB) StartHeight() uint64 {
	a.load()
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.startHeight
}

// SetStartHeight stores the start height, panics on error
func (a *AppDB) SetStartHeight(height uint64) {
	a.load()

	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, height)
	if err := a.db.Set(startHeightKey, value); err != nil {
		panic(err)
	}

	a.mu.Lock()
	a.startHeight = height
	a.mu.Unlock()
}

// AddBlockTime remembers the header time of the block being delivered. It is
// persisted with the next SaveCommit.
func (a *AppDB) AddBlockTime(blockTime time.Time) {
	a.load()
	a.mu.Lock()
	defer a.mu.Unlock()

	times := append(a.last.BlockTimes, uint64(blockTime.Unix()))
	if len(times) > BlockTimesKept {
		times = times[len(times)-BlockTimesKept:]
	}
	a.last.BlockTimes = times
}

// BlockTimes returns the unix times of the latest blocks, oldest first
func (a *AppDB) BlockTimes() []uint64 {
	a.load()
	a.mu.RLock()
	defer a.mu.RUnlock()

	return append([]uint64(nil), a.last.BlockTimes...)
}

// SaveCommit records height and hash as the last commit together with the
// block times collected so far.
func (a *AppDB) SaveCommit(height uint64, hash []byte) error {
	a.load()
	a.mu.Lock()
	defer a.mu.Unlock()

	record := commitRecord{
		Height:     height,
		Hash:       append([]byte(nil), hash...),
		BlockTimes: a.last.BlockTimes,
	}
	data, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return err
	}

	if err := a.db.SetSync(commitKey, data); err != nil {
		return errors.Wrapf(err, "save commit %d", height)
	}

	a.last = record
	return nil
}
