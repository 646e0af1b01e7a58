package emission

import "math/big"

type Model struct {
	Initialized  bool
	ActivePeriod uint64
	Weekly       *big.Int
	EpochCount   uint64

	markDirty func()
}

func (m *Model) initialize(activePeriod uint64, weekly *big.Int) {
	m.Initialized = true
	m.ActivePeriod = activePeriod
	m.Weekly = new(big.Int).Set(weekly)
	m.markDirty()
}

func (m *Model) advance(activePeriod uint64, weekly *big.Int) {
	m.ActivePeriod = activePeriod
	m.Weekly = weekly
	m.EpochCount++
	m.markDirty()
}
