package grid

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/types"
)

// Import loads the collection from genesis. Tile counts and weights are
// derived from the imported tiles and placements.
func (g *Grids) Import(state *types.AppState) error {
	model := g.collection()
	model.NextID = state.Grids.NextID
	model.Colors = append([]string(nil), state.Grids.Colors...)
	model.markDirty()

	for _, item := range state.Grids.List {
		if g.get(item.ID) != nil {
			return errors.Errorf("duplicate grid %d", item.ID)
		}
		grid := g.create(item.ID, item.Owner)
		for _, tile := range item.Tiles {
			c := Coord{X: tile.X, Y: tile.Y}
			if _, ok := grid.tiles[c]; ok {
				return errors.Errorf("grid %d: duplicate tile (%d, %d)", item.ID, c.X, c.Y)
			}
			grid.setTile(c, &Tile{Owner: tile.Owner, Color: tile.Color})
			grid.setOwned(tile.Owner, grid.tilesOwned[tile.Owner]+1)
		}
	}

	var total uint64
	for _, placement := range state.Grids.Placements {
		grid := g.get(placement.Grid)
		if grid == nil {
			return errors.Wrapf(code.ErrGridNotFound, "placements of %s on grid %d", placement.Account, placement.Grid)
		}
		grid.addPlacements(placement.Account, g.placed(grid, placement.Account), placement.Count)
		g.setWeight(placement.Account, new(big.Int).Add(g.weight(placement.Account), new(big.Int).SetUint64(placement.Count)))
		total += placement.Count
	}
	model.addPlaced(total)

	return nil
}

func (g *Grids) Export(state *types.AppState) {
	model := g.collection()
	state.Grids = types.Grids{
		NextID: model.NextID,
		Colors: g.Colors(),
	}

	for id := types.GridID(0); id < model.NextID; id++ {
		grid := g.get(id)
		if grid == nil {
			continue
		}

		item := types.Grid{ID: id, Owner: grid.Owner}
		tiles, _ := g.Tiles(id)
		set := make(map[Coord]struct{}, len(tiles))
		for c := range tiles {
			set[c] = struct{}{}
		}
		for _, c := range sortCoords(set) {
			tile := tiles[c]
			item.Tiles = append(item.Tiles, types.Tile{X: c.X, Y: c.Y, Owner: tile.Owner, Color: tile.Color})
		}
		state.Grids.List = append(state.Grids.List, item)

		if tree := g.immutableTree(); tree != nil {
			prefix := append(gridPath(id), placementPrefix)
			end := append(gridPath(id), placementPrefix+1)
			tree.IterateRange(prefix, end, true, func(key []byte, value []byte) bool {
				account := types.BytesToAddress(key[len(prefix):])
				if _, ok := grid.placements[account]; !ok {
					grid.placements[account] = bytesUint64(value)
				}
				return false
			})
		}

		accounts := map[types.Address]struct{}{}
		for account, n := range grid.placements {
			if n > 0 {
				accounts[account] = struct{}{}
			}
		}
		for _, account := range sortAddresses(accounts) {
			state.Grids.Placements = append(state.Grids.Placements, types.Placement{
				Grid:    id,
				Account: account,
				Count:   grid.placements[account],
			})
		}
	}
}
