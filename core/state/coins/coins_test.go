package coins

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state/accounts"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/tree"
)

var holder = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")

func TestCoins_MintAndBurn(t *testing.T) {
	t.Parallel()
	b := bus.NewBus()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)

	acc := accounts.NewAccounts(b, mutableTree.GetLastImmutable())
	coins := NewCoins(b, mutableTree.GetLastImmutable())

	require.NoError(t, coins.Mint(holder, types.AssetOption, big.NewInt(300)))
	require.Equal(t, "300", coins.GetVolume(types.AssetOption).String())
	require.Equal(t, "300", acc.GetBalance(holder, types.AssetOption).String())

	require.NoError(t, coins.Burn(holder, types.AssetOption, big.NewInt(100)))
	require.Equal(t, "200", coins.GetVolume(types.AssetOption).String())

	err = coins.Burn(holder, types.AssetOption, big.NewInt(201))
	require.ErrorIs(t, err, code.ErrInsufficientBalance)
	require.Equal(t, "200", coins.GetVolume(types.AssetOption).String())

	err = coins.Mint(holder, types.AssetID(42), big.NewInt(1))
	require.ErrorIs(t, err, code.ErrUnknownAsset)

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(200))
	err = coins.Mint(holder, types.AssetOption, max)
	require.ErrorIs(t, err, code.ErrAmountOverflow)

	_, _, err = mutableTree.Commit(acc, coins)
	require.NoError(t, err)

	reloaded := NewCoins(bus.NewBus(), mutableTree.GetLastImmutable())
	state := &types.AppState{}
	reloaded.Export(state)
	require.Equal(t, []types.Coin{
		{Asset: types.AssetBase, Symbol: "BASE", Volume: "0"},
		{Asset: types.AssetToken, Symbol: "TOKEN", Volume: "0"},
		{Asset: types.AssetOption, Symbol: "OTOKEN", Volume: "200"},
	}, state.Coins)
}
