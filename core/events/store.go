package events

import (
	"encoding/binary"
	"sync"

	"github.com/tendermint/go-amino"
	db "github.com/tendermint/tm-db"
)

// IEventsDB is an interface of Events
type IEventsDB interface {
	AddEvent(height uint32, event Event)
	LoadEvents(height uint32) Events
	CommitEvents() error
}

var (
	blockPrefix     = []byte("b")
	addressPrefix   = []byte("a")
	addressCountKey = []byte("addresses")
)

// eventsStore keeps the events of each block under its height. Addresses
// are stored once and referenced by a sequential id.
type eventsStore struct {
	cdc *amino.Codec
	db  db.DB

	addresses *addressBook

	pendingMu     sync.Mutex
	pendingHeight uint32
	pending       Events
}

// NewEventsStore creates new events store in given DB
func NewEventsStore(db db.DB) IEventsDB {
	cdc := amino.NewCodec()
	cdc.RegisterInterface((*compactEvent)(nil), nil)
	cdc.RegisterConcrete(&rewardClaim{}, "tilemint/rewardClaim", nil)
	cdc.RegisterConcrete(&rewardNotify{}, "tilemint/rewardNotify", nil)
	cdc.RegisterConcrete(&tokenMint{}, "tilemint/tokenMint", nil)
	cdc.RegisterConcrete(&tokenBurn{}, "tilemint/tokenBurn", nil)
	cdc.RegisterConcrete(&tokenExercise{}, "tilemint/tokenExercise", nil)
	cdc.RegisterConcrete(&tokenLoan{}, "tilemint/tokenLoan", nil)
	cdc.RegisterConcrete(&tilePlace{}, "tilemint/tilePlace", nil)
	cdc.RegisterConcrete(&emission{}, "tilemint/emission", nil)

	return &eventsStore{
		cdc:       cdc,
		db:        db,
		addresses: &addressBook{db: db},
	}
}

// AddEvent queues event for the block at height. Queuing for a new height
// drops whatever was queued and not committed for the previous one.
func (s *eventsStore) AddEvent(height uint32, event Event) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if s.pendingHeight != height {
		s.pending = nil
		s.pendingHeight = height
	}
	s.pending = append(s.pending, event)
}

func (s *eventsStore) LoadEvents(height uint32) Events {
	data, err := s.db.Get(heightKey(height))
	if err != nil {
		panic(err)
	}
	if len(data) == 0 {
		return Events{}
	}

	var items []compactEvent
	if err := s.cdc.UnmarshalBinaryBare(data, &items); err != nil {
		panic(err)
	}

	result := make(Events, 0, len(items))
	for _, item := range items {
		result = append(result, item.compile(s.addresses.address(item.addressID())))
	}
	return result
}

func (s *eventsStore) CommitEvents() error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	items := make([]compactEvent, 0, len(s.pending))
	for _, event := range s.pending {
		id, err := s.addresses.id(event.address())
		if err != nil {
			return err
		}
		items = append(items, event.convert(id))
	}

	data, err := s.cdc.MarshalBinaryBare(items)
	if err != nil {
		return err
	}
	if err := s.db.Set(heightKey(s.pendingHeight), data); err != nil {
		return err
	}

	s.pending = nil
	return nil
}

// addressBook maps addresses to the ids events refer to them by. It is
// loaded from the db on first use.
type addressBook struct {
	db db.DB

	mu     sync.RWMutex
	loaded bool
	byID   [][20]byte
	ids    map[[20]byte]uint32
}

func (b *addressBook) load() {
	if b.loaded {
		return
	}
	b.ids = make(map[[20]byte]uint32)

	count, err := b.db.Get(addressCountKey)
	if err != nil {
		panic(err)
	}
	if len(count) != 0 {
		for id := uint32(0); id < binary.BigEndian.Uint32(count); id++ {
			raw, err := b.db.Get(addressKey(id))
			if err != nil {
				panic(err)
			}
			var address [20]byte
			copy(address[:], raw)
			b.byID = append(b.byID, address)
			b.ids[address] = id
		}
	}
	b.loaded = true
}

func (b *addressBook) address(id uint32) [20]byte {
	b.mu.Lock()
	b.load()
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(id) >= len(b.byID) {
		return [20]byte{}
	}
	return b.byID[id]
}

// id returns the id of address, registering it when it is new.
func (b *addressBook) id(address [20]byte) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.load()

	if id, ok := b.ids[address]; ok {
		return id, nil
	}

	id := uint32(len(b.byID))
	if err := b.db.Set(addressKey(id), address[:]); err != nil {
		return 0, err
	}
	if err := b.db.Set(addressCountKey, uint32ToBytes(id+1)); err != nil {
		return 0, err
	}
	b.byID = append(b.byID, address)
	b.ids[address] = id
	return id, nil
}

func heightKey(height uint32) []byte {
	return append(append([]byte(nil), blockPrefix...), uint32ToBytes(height)...)
}

func addressKey(id uint32) []byte {
	return append(append([]byte(nil), addressPrefix...), uint32ToBytes(id)...)
}

func uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
