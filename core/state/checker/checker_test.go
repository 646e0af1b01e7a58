package checker

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
)

func TestChecker(t *testing.T) {
	t.Parallel()
	c := NewChecker(bus.NewBus())

	c.AddVolume(types.AssetToken, big.NewInt(500))
	c.AddBalance(types.AssetToken, big.NewInt(500))
	c.AddBalance(types.AssetBase, big.NewInt(-10))
	c.AddBalance(types.AssetBase, big.NewInt(10))
	assert.NoError(t, c.Check())

	c.AddBalance(types.AssetOption, big.NewInt(1))
	assert.EqualError(t, c.Check(), "invariants error on asset OTOKEN: -1")

	c.Reset()
	assert.NoError(t, c.Check())
}
