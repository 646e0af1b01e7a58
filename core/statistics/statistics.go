package statistics

import (
	"math/big"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const subsystem = "node"

// Metrics contains the gauges reported by the node.
type Metrics struct {
	Height         metrics.Gauge
	BlockDuration  metrics.Gauge
	BlockTimestamp metrics.Gauge

	TokenSupply  metrics.Gauge
	TokenReserve metrics.Gauge
	TokenStaked  metrics.Gauge
	TokenPrice   metrics.Gauge
	TilesPlaced  metrics.Gauge

	// labeled by "path"
	APIResponseTime metrics.Gauge
}

// PrometheusMetrics registers the gauges in the default prometheus registry.
func PrometheusMetrics(namespace string) *Metrics {
	gauge := func(name, help string, labels ...string) metrics.Gauge {
		return kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Metrics{
		Height:          gauge("height", "Current height"),
		BlockDuration:   gauge("last_block_duration", "Last block duration in seconds"),
		BlockTimestamp:  gauge("last_block_timestamp", "Timestamp of the last block"),
		TokenSupply:     gauge("token_supply", "TOKEN supply"),
		TokenReserve:    gauge("token_reserve", "BASE held by the curve reserve"),
		TokenStaked:     gauge("token_staked", "TOKEN staked"),
		TokenPrice:      gauge("token_price", "Spot price of TOKEN in BASE"),
		TilesPlaced:     gauge("tiles_placed", "Tile placements across all grids"),
		APIResponseTime: gauge("api", "API response time per path", "path"),
	}
}

// NopMetrics returns gauges that discard every value.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:          discard.NewGauge(),
		BlockDuration:   discard.NewGauge(),
		BlockTimestamp:  discard.NewGauge(),
		TokenSupply:     discard.NewGauge(),
		TokenReserve:    discard.NewGauge(),
		TokenStaked:     discard.NewGauge(),
		TokenPrice:      discard.NewGauge(),
		TilesPlaced:     discard.NewGauge(),
		APIResponseTime: discard.NewGauge(),
	}
}

type Data struct {
	BlockStart struct {
		sync.RWMutex
		height    uint64
		time      time.Time
		timestamp float64
	}
	BlockEnd struct {
		sync.RWMutex
		LastBlockInfo LastBlockInfo
	}

	metrics *Metrics
}

type LastBlockInfo struct {
	Height    uint64
	Duration  float64
	Timestamp float64
}

// TokenInfo is the curve snapshot reported after a block.
type TokenInfo struct {
	Supply  *big.Int
	Reserve *big.Int
	Staked  *big.Int
	Price   *big.Int
}

func New(m *Metrics) *Data {
	return &Data{metrics: m}
}

func (d *Data) SetStartBlock(height uint64, now time.Time, headerTime time.Time) {
	if d == nil {
		return
	}

	d.BlockStart.Lock()
	defer d.BlockStart.Unlock()

	d.BlockStart.height = height
	d.BlockStart.time = now
	d.BlockStart.timestamp = float64(headerTime.Unix())
}

func (d *Data) SetEndBlockDuration(timeEnd time.Time, height uint64) {
	if d == nil {
		return
	}

	d.BlockStart.RLock()
	defer d.BlockStart.RUnlock()

	if height != d.BlockStart.height {
		return
	}

	d.BlockEnd.Lock()
	defer d.BlockEnd.Unlock()

	durationSeconds := timeEnd.Sub(d.BlockStart.time).Seconds()

	d.metrics.Height.Set(float64(height))
	d.metrics.BlockDuration.Set(durationSeconds)
	d.metrics.BlockTimestamp.Set(d.BlockStart.timestamp)

	d.BlockEnd.LastBlockInfo = LastBlockInfo{
		Height:    height,
		Duration:  durationSeconds,
		Timestamp: d.BlockStart.timestamp,
	}
}

func (d *Data) SetToken(info TokenInfo) {
	if d == nil {
		return
	}

	d.metrics.TokenSupply.Set(toFloat(info.Supply))
	d.metrics.TokenReserve.Set(toFloat(info.Reserve))
	d.metrics.TokenStaked.Set(toFloat(info.Staked))
	d.metrics.TokenPrice.Set(toFloat(info.Price))
}

func (d *Data) SetTilesPlaced(count uint64) {
	if d == nil {
		return
	}

	d.metrics.TilesPlaced.Set(float64(count))
}

func (d *Data) SetApiTime(duration time.Duration, path string) {
	if d == nil {
		return
	}

	d.metrics.APIResponseTime.With("path", path).Set(duration.Seconds())
}

func (d *Data) GetLastBlockInfo() LastBlockInfo {
	if d == nil {
		return LastBlockInfo{}
	}

	d.BlockEnd.RLock()
	defer d.BlockEnd.RUnlock()

	return d.BlockEnd.LastBlockInfo
}

func toFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
