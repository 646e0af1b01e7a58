package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/types"
)

type GridsResponse struct {
	Count       uint32 `json:"count"`
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	TotalPlaced uint64 `json:"total_placed"`
}

type TileResponse struct {
	X       uint32         `json:"x"`
	Y       uint32         `json:"y"`
	Claimed bool           `json:"claimed"`
	Owner   *types.Address `json:"owner,omitempty"`
	Color   string         `json:"color,omitempty"`
}

type PlacementResponse struct {
	Grid   types.GridID `json:"grid"`
	Placed uint64       `json:"placed"`
	Owned  uint64       `json:"owned"`
}

type PlacementsResponse struct {
	Weight string              `json:"weight"`
	Grids  []PlacementResponse `json:"grids"`
}

func (s *Service) palette(c *gin.Context) {
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"colors": cState.Grids().Colors()})
}

func (s *Service) grids(c *gin.Context) {
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	grids := cState.Grids()
	width, height := grids.Size()
	c.JSON(http.StatusOK, GridsResponse{
		Count:       uint32(grids.NextID()),
		Width:       width,
		Height:      height,
		TotalPlaced: grids.TotalPlaced(),
	})
}

func (s *Service) grid(c *gin.Context) {
	id, ok := gridParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	info, err := cState.Grids().GetGrid(id)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// tiles lists the claimed tiles of a grid, row by row.
func (s *Service) tiles(c *gin.Context) {
	id, ok := gridParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	grids := cState.Grids()
	tiles, err := grids.Tiles(id)
	if err != nil {
		badRequest(c, err)
		return
	}

	result := make([]TileResponse, 0, len(tiles))
	for coord, tile := range tiles {
		owner := tile.Owner
		color, _ := grids.Color(tile.Color)
		result = append(result, TileResponse{X: coord.X, Y: coord.Y, Claimed: true, Owner: &owner, Color: color})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Y != result[j].Y {
			return result[i].Y < result[j].Y
		}
		return result[i].X < result[j].X
	})

	c.JSON(http.StatusOK, result)
}

func (s *Service) tile(c *gin.Context) {
	id, ok := gridParam(c)
	if !ok {
		return
	}
	x, errX := strconv.ParseUint(c.Param("x"), 10, 32)
	y, errY := strconv.ParseUint(c.Param("y"), 10, 32)
	if errX != nil || errY != nil {
		badRequest(c, errors.Wrapf(code.ErrDecode, "invalid coordinates %q, %q", c.Param("x"), c.Param("y")))
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	grids := cState.Grids()
	tile, err := grids.Tile(id, uint32(x), uint32(y))
	if err != nil {
		badRequest(c, err)
		return
	}

	response := TileResponse{X: uint32(x), Y: uint32(y)}
	if tile != nil {
		response.Claimed = true
		response.Owner = &tile.Owner
		response.Color, _ = grids.Color(tile.Color)
	}
	c.JSON(http.StatusOK, response)
}

func (s *Service) placements(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	grids := cState.Grids()
	response := PlacementsResponse{
		Weight: grids.Weight(address).String(),
		Grids:  []PlacementResponse{},
	}
	for id := types.GridID(0); id < grids.NextID(); id++ {
		placed := grids.Placements(id, address)
		owned := grids.TilesOwned(id, address)
		if placed == 0 && owned == 0 {
			continue
		}
		response.Grids = append(response.Grids, PlacementResponse{Grid: id, Placed: placed, Owned: owned})
	}

	c.JSON(http.StatusOK, response)
}

func gridParam(c *gin.Context) (types.GridID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, errors.Wrapf(code.ErrDecode, "invalid grid id %q", c.Param("id")))
		return 0, false
	}
	return types.GridID(id), true
}
