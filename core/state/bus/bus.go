package bus

import eventsdb "github.com/tilemint/tilemint-node/core/events"

// Bus hands every state module the narrow interfaces of its neighbours.
type Bus struct {
	app       App
	accounts  Accounts
	coins     Coins
	rewarders Rewarders
	fees      Fees
	checker   Checker
	events    eventsdb.IEventsDB
	height    uint64
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) SetApp(app App) {
	b.app = app
}

func (b *Bus) App() App {
	return b.app
}

func (b *Bus) SetAccounts(accounts Accounts) {
	b.accounts = accounts
}

func (b *Bus) Accounts() Accounts {
	return b.accounts
}

func (b *Bus) SetCoins(coins Coins) {
	b.coins = coins
}

func (b *Bus) Coins() Coins {
	return b.coins
}

func (b *Bus) SetRewarders(rewarders Rewarders) {
	b.rewarders = rewarders
}

func (b *Bus) Rewarders() Rewarders {
	return b.rewarders
}

func (b *Bus) SetFees(fees Fees) {
	b.fees = fees
}

func (b *Bus) Fees() Fees {
	return b.fees
}

func (b *Bus) SetChecker(checker Checker) {
	b.checker = checker
}

// Checker never returns nil; without a checker set, changes go nowhere.
func (b *Bus) Checker() Checker {
	if b.checker == nil {
		return noopChecker{}
	}
	return b.checker
}

func (b *Bus) SetEvents(events eventsdb.IEventsDB) {
	b.events = events
}

func (b *Bus) Events() eventsdb.IEventsDB {
	return b.events
}

// SetHeight sets the block height events are recorded at.
func (b *Bus) SetHeight(height uint64) {
	b.height = height
}

// AddEvent records event at the current height; no-op without an events store.
func (b *Bus) AddEvent(event eventsdb.Event) {
	if b.events == nil {
		return
	}
	b.events.AddEvent(uint32(b.height), event)
}
