package accounts

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

type Bus struct {
	accounts *Accounts
}

func NewBus(accounts *Accounts) *Bus {
	return &Bus{accounts: accounts}
}

func (b *Bus) GetBalance(address types.Address, asset types.AssetID) *big.Int {
	return b.accounts.GetBalance(address, asset)
}

func (b *Bus) AddBalance(address types.Address, asset types.AssetID, amount *big.Int) {
	b.accounts.AddBalance(address, asset, amount)
}

func (b *Bus) SubBalance(address types.Address, asset types.AssetID, amount *big.Int) error {
	return b.accounts.SubBalance(address, asset, amount)
}

func (b *Bus) Transfer(from, to types.Address, asset types.AssetID, amount *big.Int) error {
	return b.accounts.Transfer(from, to, asset, amount)
}

func (b *Bus) GetAllowance(owner, spender types.Address, asset types.AssetID) *big.Int {
	return b.accounts.GetAllowance(owner, spender, asset)
}

func (b *Bus) SpendAllowance(owner, spender types.Address, asset types.AssetID, amount *big.Int) error {
	return b.accounts.SpendAllowance(owner, spender, asset, amount)
}
