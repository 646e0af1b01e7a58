package grid

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

// Model is the grid collection: id counter and the shared palette.
type Model struct {
	NextID      types.GridID
	Colors      []string
	TotalPlaced uint64

	markDirty func()
}

func (m *Model) setColor(index int, color string) {
	if index == len(m.Colors) {
		m.Colors = append(m.Colors, color)
	} else {
		m.Colors[index] = color
	}
	m.markDirty()
}

func (m *Model) nextID() types.GridID {
	id := m.NextID
	m.NextID++
	m.markDirty()
	return id
}

func (m *Model) addPlaced(n uint64) {
	m.TotalPlaced += n
	m.markDirty()
}

// Coord is a tile position, x the column and y the row.
type Coord struct {
	X uint32
	Y uint32
}

// Tile is a claimed cell. Color indexes the palette.
type Tile struct {
	Owner types.Address
	Color uint32
}

// Grid is one W x H collection item and its placement ledger.
type Grid struct {
	Owner  types.Address
	Placed uint64

	id          types.GridID
	tiles       map[Coord]*Tile
	tilesOwned  map[types.Address]uint64
	placements  map[types.Address]uint64
	tilesLoaded bool

	dirtyTiles      map[Coord]struct{}
	dirtyOwned      map[types.Address]struct{}
	dirtyPlacements map[types.Address]struct{}
	isDirty         bool

	markDirty func(types.GridID)
}

func newGrid(id types.GridID) *Grid {
	return &Grid{
		id:              id,
		tiles:           map[Coord]*Tile{},
		tilesOwned:      map[types.Address]uint64{},
		placements:      map[types.Address]uint64{},
		dirtyTiles:      map[Coord]struct{}{},
		dirtyOwned:      map[types.Address]struct{}{},
		dirtyPlacements: map[types.Address]struct{}{},
	}
}

func (g *Grid) setOwner(owner types.Address) {
	g.Owner = owner
	g.isDirty = true
	g.markDirty(g.id)
}

func (g *Grid) setTile(c Coord, tile *Tile) {
	g.tiles[c] = tile
	g.dirtyTiles[c] = struct{}{}
	g.markDirty(g.id)
}

func (g *Grid) setOwned(account types.Address, n uint64) {
	g.tilesOwned[account] = n
	g.dirtyOwned[account] = struct{}{}
	g.markDirty(g.id)
}

func (g *Grid) addPlacements(account types.Address, current, n uint64) {
	g.placements[account] = current + n
	g.dirtyPlacements[account] = struct{}{}
	g.Placed += n
	g.isDirty = true
	g.markDirty(g.id)
}

func uint64Bytes(n uint64) []byte {
	return new(big.Int).SetUint64(n).Bytes()
}

func bytesUint64(b []byte) uint64 {
	return new(big.Int).SetBytes(b).Uint64()
}
