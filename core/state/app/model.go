package app

import (
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
)

type Model struct {
	Owner  types.Address
	Params bus.Params

	markDirty func()
}

func (model *Model) setOwner(owner types.Address) {
	model.Owner = owner
	model.markDirty()
}

func (model *Model) setParams(params bus.Params) {
	model.Params = params
	model.markDirty()
}
