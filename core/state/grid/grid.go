package grid

import (
	"bytes"
	"encoding/binary"
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
	"github.com/tilemint/tilemint-node/fixed"
)

const (
	mainPrefix      = byte('g')
	gridPrefix      = byte('i')
	weightPrefix    = byte('w')
	tilePrefix      = byte('t')
	ownedPrefix     = byte('o')
	placementPrefix = byte('p')
)

// MaxTilesPerPlace bounds a single placement batch.
const MaxTilesPerPlace = 1024

type RGrids interface {
	Export(state *types.AppState)
	Exists(id types.GridID) bool
	GetGrid(id types.GridID) (*Info, error)
	NextID() types.GridID
	Colors() []string
	Color(index uint32) (string, bool)
	Tile(id types.GridID, x, y uint32) (*Tile, error)
	Tiles(id types.GridID) (map[Coord]Tile, error)
	TilesOwned(id types.GridID, account types.Address) uint64
	OwnedCoords(id types.GridID, account types.Address) ([]Coord, error)
	Placements(id types.GridID, account types.Address) uint64
	Weight(account types.Address) *big.Int
	TotalPlaced() uint64
	Size() (width, height uint32)
	CheckPlace(id types.GridID, payer types.Address, xs, ys []uint32, color uint32) (*big.Int, error)
	CheckSetColors(caller types.Address, colors []string) error
	CheckSetColor(caller types.Address, index uint32, color string) error
	CheckMintGrid(caller types.Address) error
	CheckTransferGrid(caller types.Address, id types.GridID) error
}

// Info is the public view of a grid.
type Info struct {
	ID     types.GridID  `json:"id"`
	Owner  types.Address `json:"owner"`
	Placed uint64        `json:"placed"`
	Width  uint32        `json:"width"`
	Height uint32        `json:"height"`
}

// Grids is the grid NFT collection with per-grid tile ownership and the
// placement ledger that weights the grid rewarder.
type Grids struct {
	model *Model
	list  map[types.GridID]*Grid
	dirty map[types.GridID]struct{}

	weights      map[types.Address]*big.Int
	dirtyWeights map[types.Address]struct{}
	isDirty      bool

	bus *bus.Bus
	db  atomic.Value

	lock sync.RWMutex
}

func NewGrids(stateBus *bus.Bus, db *iavl.ImmutableTree) *Grids {
	immutableTree := atomic.Value{}
	if db != nil {
		immutableTree.Store(db)
	}
	return &Grids{
		bus:          stateBus,
		db:           immutableTree,
		list:         map[types.GridID]*Grid{},
		dirty:        map[types.GridID]struct{}{},
		weights:      map[types.Address]*big.Int{},
		dirtyWeights: map[types.Address]struct{}{},
	}
}

func (g *Grids) immutableTree() *iavl.ImmutableTree {
	db := g.db.Load()
	if db == nil {
		return nil
	}
	return db.(*iavl.ImmutableTree)
}

func (g *Grids) SetImmutableTree(immutableTree *iavl.ImmutableTree) {
	g.db.Store(immutableTree)
}

func gridPath(id types.GridID) []byte {
	return append([]byte{mainPrefix, gridPrefix}, id.Bytes()...)
}

func tilePath(id types.GridID, c Coord) []byte {
	path := append(gridPath(id), tilePrefix)
	xy := make([]byte, 4)
	binary.BigEndian.PutUint16(xy[:2], uint16(c.X))
	binary.BigEndian.PutUint16(xy[2:], uint16(c.Y))
	return append(path, xy...)
}

func ownedPath(id types.GridID, account types.Address) []byte {
	return append(append(gridPath(id), ownedPrefix), account[:]...)
}

func placementPath(id types.GridID, account types.Address) []byte {
	return append(append(gridPath(id), placementPrefix), account[:]...)
}

func weightPath(account types.Address) []byte {
	return append([]byte{mainPrefix, weightPrefix}, account[:]...)
}

func sortAddresses(set map[types.Address]struct{}) []types.Address {
	keys := make([]types.Address, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) == -1
	})
	return keys
}

func sortCoords(set map[Coord]struct{}) []Coord {
	keys := make([]Coord, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}

func (g *Grids) Commit(db *iavl.MutableTree, version int64) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.isDirty {
		g.isDirty = false
		data, err := rlp.EncodeToBytes(g.model)
		if err != nil {
			return fmt.Errorf("can't encode grid collection: %s", err)
		}
		db.Set([]byte{mainPrefix}, data)
	}

	ids := make([]types.GridID, 0, len(g.dirty))
	for id := range g.dirty {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		grid := g.list[id]
		delete(g.dirty, id)

		if grid.isDirty {
			grid.isDirty = false
			data, err := rlp.EncodeToBytes(grid)
			if err != nil {
				return fmt.Errorf("can't encode grid %s: %s", id, err)
			}
			db.Set(gridPath(id), data)
		}

		for _, c := range sortCoords(grid.dirtyTiles) {
			data, err := rlp.EncodeToBytes(grid.tiles[c])
			if err != nil {
				return fmt.Errorf("can't encode tile %s/%d/%d: %s", id, c.X, c.Y, err)
			}
			db.Set(tilePath(id, c), data)
		}
		grid.dirtyTiles = map[Coord]struct{}{}

		for _, account := range sortAddresses(grid.dirtyOwned) {
			if n := grid.tilesOwned[account]; n > 0 {
				db.Set(ownedPath(id, account), uint64Bytes(n))
			} else {
				db.Remove(ownedPath(id, account))
			}
		}
		grid.dirtyOwned = map[types.Address]struct{}{}

		for _, account := range sortAddresses(grid.dirtyPlacements) {
			db.Set(placementPath(id, account), uint64Bytes(grid.placements[account]))
		}
		grid.dirtyPlacements = map[types.Address]struct{}{}
	}

	for _, account := range sortAddresses(g.dirtyWeights) {
		db.Set(weightPath(account), g.weights[account].Bytes())
	}
	g.dirtyWeights = map[types.Address]struct{}{}

	return nil
}

func (g *Grids) markModelDirty() {
	g.isDirty = true
}

func (g *Grids) markDirty(id types.GridID) {
	g.dirty[id] = struct{}{}
}

func (g *Grids) collection() *Model {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.model != nil {
		return g.model
	}

	model := &Model{}
	if tree := g.immutableTree(); tree != nil {
		_, enc := tree.Get([]byte{mainPrefix})
		if len(enc) != 0 {
			if err := rlp.DecodeBytes(enc, model); err != nil {
				panic(fmt.Sprintf("failed to decode grid collection: %s", err))
			}
		}
	}
	model.markDirty = g.markModelDirty

	g.model = model
	return g.model
}

// get returns nil for a grid that was never minted.
func (g *Grids) get(id types.GridID) *Grid {
	g.lock.RLock()
	grid, ok := g.list[id]
	g.lock.RUnlock()
	if ok {
		return grid
	}

	tree := g.immutableTree()
	if tree == nil {
		return nil
	}
	_, enc := tree.Get(gridPath(id))
	if len(enc) == 0 {
		return nil
	}

	grid = newGrid(id)
	if err := rlp.DecodeBytes(enc, grid); err != nil {
		panic(fmt.Sprintf("failed to decode grid %s: %s", id, err))
	}
	grid.markDirty = g.markDirty

	g.lock.Lock()
	g.list[id] = grid
	g.lock.Unlock()

	return grid
}

func (g *Grids) mustGet(id types.GridID) (*Grid, error) {
	grid := g.get(id)
	if grid == nil {
		return nil, errors.Wrapf(code.ErrGridNotFound, "grid %s", id)
	}
	return grid, nil
}

func (g *Grids) tile(grid *Grid, c Coord) *Tile {
	if tile, ok := grid.tiles[c]; ok {
		return tile
	}
	if grid.tilesLoaded {
		return nil
	}

	tree := g.immutableTree()
	if tree == nil {
		return nil
	}
	_, enc := tree.Get(tilePath(grid.id, c))
	if len(enc) == 0 {
		return nil
	}

	tile := &Tile{}
	if err := rlp.DecodeBytes(enc, tile); err != nil {
		panic(fmt.Sprintf("failed to decode tile %s/%d/%d: %s", grid.id, c.X, c.Y, err))
	}
	grid.tiles[c] = tile
	return tile
}

// loadTiles pulls every stored tile of grid into its cache.
func (g *Grids) loadTiles(grid *Grid) {
	if grid.tilesLoaded {
		return
	}

	if tree := g.immutableTree(); tree != nil {
		prefix := append(gridPath(grid.id), tilePrefix)
		end := append(gridPath(grid.id), tilePrefix+1)
		tree.IterateRange(prefix, end, true, func(key []byte, value []byte) bool {
			xy := key[len(prefix):]
			c := Coord{X: uint32(binary.BigEndian.Uint16(xy[:2])), Y: uint32(binary.BigEndian.Uint16(xy[2:]))}
			if _, ok := grid.tiles[c]; ok {
				return false
			}
			tile := &Tile{}
			if err := rlp.DecodeBytes(value, tile); err != nil {
				panic(fmt.Sprintf("failed to decode tile %s/%d/%d: %s", grid.id, c.X, c.Y, err))
			}
			grid.tiles[c] = tile
			return false
		})
	}

	grid.tilesLoaded = true
}

func (g *Grids) counter(grid *Grid, cache map[types.Address]uint64, path []byte, account types.Address) uint64 {
	if n, ok := cache[account]; ok {
		return n
	}

	var n uint64
	if tree := g.immutableTree(); tree != nil {
		_, enc := tree.Get(path)
		n = bytesUint64(enc)
	}
	cache[account] = n
	return n
}

func (g *Grids) owned(grid *Grid, account types.Address) uint64 {
	return g.counter(grid, grid.tilesOwned, ownedPath(grid.id, account), account)
}

func (g *Grids) placed(grid *Grid, account types.Address) uint64 {
	return g.counter(grid, grid.placements, placementPath(grid.id, account), account)
}

func (g *Grids) weight(account types.Address) *big.Int {
	g.lock.RLock()
	weight, ok := g.weights[account]
	g.lock.RUnlock()
	if ok {
		return weight
	}

	weight = big.NewInt(0)
	if tree := g.immutableTree(); tree != nil {
		_, enc := tree.Get(weightPath(account))
		weight.SetBytes(enc)
	}

	g.lock.Lock()
	g.weights[account] = weight
	g.lock.Unlock()

	return weight
}

func (g *Grids) setWeight(account types.Address, weight *big.Int) {
	g.lock.Lock()
	g.weights[account] = weight
	g.dirtyWeights[account] = struct{}{}
	g.lock.Unlock()
}

func (g *Grids) Size() (width, height uint32) {
	params := g.bus.App().Params()
	return params.GridWidth, params.GridHeight
}

func (g *Grids) Exists(id types.GridID) bool {
	return g.get(id) != nil
}

func (g *Grids) GetGrid(id types.GridID) (*Info, error) {
	grid, err := g.mustGet(id)
	if err != nil {
		return nil, err
	}
	width, height := g.Size()
	return &Info{ID: id, Owner: grid.Owner, Placed: grid.Placed, Width: width, Height: height}, nil
}

// NextID is the id the next minted grid gets.
func (g *Grids) NextID() types.GridID {
	return g.collection().NextID
}

func (g *Grids) TotalPlaced() uint64 {
	return g.collection().TotalPlaced
}

// Colors returns a copy of the palette.
func (g *Grids) Colors() []string {
	colors := g.collection().Colors
	return append(make([]string, 0, len(colors)), colors...)
}

func (g *Grids) Color(index uint32) (string, bool) {
	colors := g.collection().Colors
	if int(index) >= len(colors) {
		return "", false
	}
	return colors[index], true
}

func (g *Grids) checkCoord(x, y uint32) error {
	width, height := g.Size()
	if x >= width || y >= height {
		return errors.Wrapf(code.ErrOutOfBounds, "(%d, %d) outside %dx%d", x, y, width, height)
	}
	return nil
}

// Tile returns the tile at (x, y), or nil while it is unclaimed.
func (g *Grids) Tile(id types.GridID, x, y uint32) (*Tile, error) {
	grid, err := g.mustGet(id)
	if err != nil {
		return nil, err
	}
	if err := g.checkCoord(x, y); err != nil {
		return nil, err
	}

	tile := g.tile(grid, Coord{X: x, Y: y})
	if tile == nil {
		return nil, nil
	}
	copied := *tile
	return &copied, nil
}

// Tiles returns every claimed tile of a grid.
func (g *Grids) Tiles(id types.GridID) (map[Coord]Tile, error) {
	grid, err := g.mustGet(id)
	if err != nil {
		return nil, err
	}
	g.loadTiles(grid)

	result := make(map[Coord]Tile, len(grid.tiles))
	for c, tile := range grid.tiles {
		result[c] = *tile
	}
	return result, nil
}

// TilesOwned is the number of tiles of grid id whose last placement was
// credited to account.
func (g *Grids) TilesOwned(id types.GridID, account types.Address) uint64 {
	grid := g.get(id)
	if grid == nil {
		return 0
	}
	return g.owned(grid, account)
}

// OwnedCoords lists the tiles of account, ordered by column then row.
func (g *Grids) OwnedCoords(id types.GridID, account types.Address) ([]Coord, error) {
	tiles, err := g.Tiles(id)
	if err != nil {
		return nil, err
	}

	set := map[Coord]struct{}{}
	for c, tile := range tiles {
		if tile.Owner == account {
			set[c] = struct{}{}
		}
	}
	return sortCoords(set), nil
}

// Placements is the cumulative number of tiles placed for account on grid id.
func (g *Grids) Placements(id types.GridID, account types.Address) uint64 {
	grid := g.get(id)
	if grid == nil {
		return 0
	}
	return g.placed(grid, account)
}

// Weight is the cumulative placement count of account over every grid and
// the weight of account in the grid rewarder.
func (g *Grids) Weight(account types.Address) *big.Int {
	return new(big.Int).Set(g.weight(account))
}

func (g *Grids) isOwner(caller types.Address) error {
	if owner := g.bus.App().Owner(); owner.IsZero() || owner != caller {
		return errors.Wrapf(code.ErrNotOwner, "%s", caller)
	}
	return nil
}

// CheckPlace validates a placement and returns its OTOKEN cost.
func (g *Grids) CheckPlace(id types.GridID, payer types.Address, xs, ys []uint32, color uint32) (*big.Int, error) {
	if _, err := g.mustGet(id); err != nil {
		return nil, err
	}
	if len(xs) != len(ys) {
		return nil, errors.Wrapf(code.ErrLengthMismatch, "%d xs, %d ys", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, errors.Wrap(code.ErrZeroAmount, "no tiles")
	}
	if len(xs) > MaxTilesPerPlace {
		return nil, errors.Wrapf(code.ErrTooManyTiles, "%d tiles, max %d", len(xs), MaxTilesPerPlace)
	}
	for i := range xs {
		if err := g.checkCoord(xs[i], ys[i]); err != nil {
			return nil, err
		}
	}
	if _, ok := g.Color(color); !ok {
		return nil, errors.Wrapf(code.ErrInvalidColor, "palette has no index %d", color)
	}

	cost, err := fixed.Mul(g.bus.App().Params().TileCost, big.NewInt(int64(len(xs))))
	if err != nil {
		return nil, code.FromMath(err)
	}

	accounts := g.bus.Accounts()
	if allowance := accounts.GetAllowance(payer, types.GridAddress, types.AssetOption); allowance.Cmp(cost) < 0 {
		return nil, errors.Wrapf(code.ErrInsufficientAllowance, "%s allowed %s %s, placement costs %s", payer, allowance, types.AssetOption.Symbol(), cost)
	}
	if balance := accounts.GetBalance(payer, types.AssetOption); balance.Cmp(cost) < 0 {
		return nil, errors.Wrapf(code.ErrInsufficientBalance, "%s has %s %s, placement costs %s", payer, balance, types.AssetOption.Symbol(), cost)
	}

	return cost, nil
}

// Place claims every (xs[i], ys[i]) of grid id for onBehalfOf in the given
// palette color, charging payer. A later placement overwrites an earlier one.
func (g *Grids) Place(id types.GridID, payer, onBehalfOf types.Address, xs, ys []uint32, color uint32, now uint64) (*big.Int, error) {
	cost, err := g.CheckPlace(id, payer, xs, ys, color)
	if err != nil {
		return nil, err
	}

	n := uint64(len(xs))
	weight := new(big.Int).Add(g.weight(onBehalfOf), new(big.Int).SetUint64(n))
	if err := g.bus.Rewarders().SetWeight(types.RewarderGridPlacement, onBehalfOf, weight, now); err != nil {
		return nil, err
	}

	if err := g.bus.Accounts().SpendAllowance(payer, types.GridAddress, types.AssetOption, cost); err != nil {
		return nil, err
	}
	if err := g.bus.Fees().ReceiveFee(payer, types.AssetOption, cost); err != nil {
		return nil, err
	}

	grid := g.get(id)

	g.lock.Lock()
	for i := range xs {
		c := Coord{X: xs[i], Y: ys[i]}
		if prev := g.tile(grid, c); prev != nil {
			if prev.Owner != onBehalfOf {
				grid.setOwned(prev.Owner, g.owned(grid, prev.Owner)-1)
				grid.setOwned(onBehalfOf, g.owned(grid, onBehalfOf)+1)
			}
		} else {
			grid.setOwned(onBehalfOf, g.owned(grid, onBehalfOf)+1)
		}
		grid.setTile(c, &Tile{Owner: onBehalfOf, Color: color})
	}
	grid.addPlacements(onBehalfOf, g.placed(grid, onBehalfOf), n)
	g.lock.Unlock()

	g.setWeight(onBehalfOf, weight)
	g.collection().addPlaced(n)

	g.bus.AddEvent(&eventsdb.TilePlaceEvent{
		Address: onBehalfOf,
		Grid:    id,
		Tiles:   uint32(n),
		Color:   color,
		Cost:    cost.String(),
	})

	return cost, nil
}

func (g *Grids) CheckSetColors(caller types.Address, colors []string) error {
	if err := g.isOwner(caller); err != nil {
		return err
	}
	for i, color := range colors {
		if !types.IsColor(color) {
			return errors.Wrapf(code.ErrInvalidColor, "color %d: %q", i, color)
		}
	}
	return nil
}

// SetColors overwrites the palette from index 0 and appends the rest. The
// palette never shrinks.
func (g *Grids) SetColors(caller types.Address, colors []string) error {
	if err := g.CheckSetColors(caller, colors); err != nil {
		return err
	}

	model := g.collection()
	for i, color := range colors {
		model.setColor(i, color)
	}
	return nil
}

func (g *Grids) CheckSetColor(caller types.Address, index uint32, color string) error {
	if err := g.isOwner(caller); err != nil {
		return err
	}
	if !types.IsColor(color) {
		return errors.Wrapf(code.ErrInvalidColor, "%q", color)
	}
	if size := len(g.collection().Colors); int(index) > size {
		return errors.Wrapf(code.ErrInvalidColor, "index %d past palette end %d", index, size)
	}
	return nil
}

// SetColor replaces the entry at index, or appends when index is the
// palette length.
func (g *Grids) SetColor(caller types.Address, index uint32, color string) error {
	if err := g.CheckSetColor(caller, index, color); err != nil {
		return err
	}

	g.collection().setColor(int(index), color)
	return nil
}

func (g *Grids) CheckMintGrid(caller types.Address) error {
	if err := g.isOwner(caller); err != nil {
		return err
	}
	if g.collection().NextID == ^types.GridID(0) {
		return errors.Wrap(code.ErrAmountOverflow, "grid ids exhausted")
	}
	return nil
}

// MintGrid creates an empty grid owned by to.
func (g *Grids) MintGrid(caller, to types.Address) (types.GridID, error) {
	if err := g.CheckMintGrid(caller); err != nil {
		return 0, err
	}

	id := g.collection().nextID()
	g.create(id, to)
	return id, nil
}

func (g *Grids) create(id types.GridID, owner types.Address) *Grid {
	grid := newGrid(id)
	grid.markDirty = g.markDirty
	grid.tilesLoaded = true

	g.lock.Lock()
	g.list[id] = grid
	g.lock.Unlock()

	grid.setOwner(owner)
	return grid
}

func (g *Grids) CheckTransferGrid(caller types.Address, id types.GridID) error {
	grid, err := g.mustGet(id)
	if err != nil {
		return err
	}
	if grid.Owner != caller {
		return errors.Wrapf(code.ErrNotOwner, "%s does not own grid %s", caller, id)
	}
	return nil
}

// TransferGrid moves the grid NFT. Tiles and placements stay with their
// accounts.
func (g *Grids) TransferGrid(caller types.Address, id types.GridID, to types.Address) error {
	if err := g.CheckTransferGrid(caller, id); err != nil {
		return err
	}

	g.get(id).setOwner(to)
	return nil
}
