package accounts

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state/bus"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/tree"
)

var (
	alice   = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
	bob     = types.HexToAddress("0x18467bbb64a8edf890201d526c35957d82be3d95")
	spender = types.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestAccounts_Transfer(t *testing.T) {
	t.Parallel()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)
	accounts := NewAccounts(bus.NewBus(), mutableTree.GetLastImmutable())

	accounts.SetBalance(alice, types.AssetBase, big.NewInt(100))

	require.NoError(t, accounts.Transfer(alice, bob, types.AssetBase, big.NewInt(40)))
	assert.Equal(t, "60", accounts.GetBalance(alice, types.AssetBase).String())
	assert.Equal(t, "40", accounts.GetBalance(bob, types.AssetBase).String())

	err = accounts.Transfer(alice, bob, types.AssetBase, big.NewInt(61))
	require.ErrorIs(t, err, code.ErrInsufficientBalance)
	assert.Equal(t, "60", accounts.GetBalance(alice, types.AssetBase).String())

	// returned balances are copies
	accounts.GetBalance(alice, types.AssetBase).SetInt64(0)
	assert.Equal(t, "60", accounts.GetBalance(alice, types.AssetBase).String())
}

func TestAccounts_Allowance(t *testing.T) {
	t.Parallel()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)
	accounts := NewAccounts(bus.NewBus(), mutableTree.GetLastImmutable())

	accounts.Approve(alice, spender, types.AssetOption, big.NewInt(50))
	require.NoError(t, accounts.SpendAllowance(alice, spender, types.AssetOption, big.NewInt(20)))
	assert.Equal(t, "30", accounts.GetAllowance(alice, spender, types.AssetOption).String())

	err = accounts.SpendAllowance(alice, spender, types.AssetOption, big.NewInt(31))
	require.ErrorIs(t, err, code.ErrInsufficientAllowance)
	assert.Equal(t, 0, accounts.GetAllowance(alice, spender, types.AssetBase).Sign())
	assert.Equal(t, 0, accounts.GetAllowance(bob, spender, types.AssetOption).Sign())
}

func TestAccounts_CommitAndExport(t *testing.T) {
	t.Parallel()
	mutableTree, err := tree.NewMutableTree(0, db.NewMemDB(), 1024)
	require.NoError(t, err)
	accounts := NewAccounts(bus.NewBus(), mutableTree.GetLastImmutable())

	accounts.SetNonce(alice, 7)
	accounts.SetBalance(alice, types.AssetBase, big.NewInt(100))
	accounts.SetBalance(alice, types.AssetToken, big.NewInt(5))
	accounts.SetBalance(bob, types.AssetOption, big.NewInt(1))
	accounts.Approve(alice, spender, types.AssetOption, big.NewInt(9))

	_, _, err = mutableTree.Commit(accounts)
	require.NoError(t, err)

	accounts.SetBalance(alice, types.AssetToken, big.NewInt(0))
	_, _, err = mutableTree.Commit(accounts)
	require.NoError(t, err)

	reloaded := NewAccounts(bus.NewBus(), mutableTree.GetLastImmutable())
	assert.Equal(t, uint64(7), reloaded.GetNonce(alice))
	assert.Equal(t, "100", reloaded.GetBalance(alice, types.AssetBase).String())
	assert.Equal(t, "9", reloaded.GetAllowance(alice, spender, types.AssetOption).String())

	state := &types.AppState{}
	reloaded.Export(state)

	expected := []types.Account{
		{
			Address:    alice,
			Balance:    []types.Balance{{Asset: types.AssetBase, Value: "100"}},
			Allowances: []types.Allowance{{Spender: spender, Asset: types.AssetOption, Value: "9"}},
			Nonce:      7,
		},
		{
			Address: bob,
			Balance: []types.Balance{{Asset: types.AssetOption, Value: "1"}},
		},
	}
	assert.Equal(t, expected, state.Accounts)
}

type recordingChecker struct {
	balances map[types.AssetID]int64
}

func (c *recordingChecker) AddBalance(asset types.AssetID, value *big.Int) {
	c.balances[asset] += value.Int64()
}

func (c *recordingChecker) AddVolume(types.AssetID, *big.Int) {}

func TestAccounts_ReportsBalanceChanges(t *testing.T) {
	t.Parallel()
	checker := &recordingChecker{balances: map[types.AssetID]int64{}}
	b := bus.NewBus()
	b.SetChecker(checker)

	accounts := NewAccounts(b, nil)
	accounts.SetBalance(alice, types.AssetBase, big.NewInt(100))
	accounts.SetBalance(alice, types.AssetBase, big.NewInt(70))
	accounts.AddBalance(bob, types.AssetBase, big.NewInt(5))
	require.NoError(t, accounts.SubBalance(bob, types.AssetBase, big.NewInt(2)))
	require.NoError(t, accounts.Transfer(alice, bob, types.AssetBase, big.NewInt(10)))

	assert.Equal(t, int64(73), checker.balances[types.AssetBase])
}
