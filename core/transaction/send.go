package transaction

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	abcTypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/types"
)

type SendData struct {
	Asset types.AssetID
	To    types.Address
	Value *big.Int
}

func (data SendData) TxType() TxType {
	return TypeSend
}

func (data SendData) Gas() int64 {
	return gasSend
}

func (data SendData) String() string {
	return fmt.Sprintf("SEND to:%s asset:%s value:%s",
		data.To.String(), data.Asset.Symbol(), data.Value.String())
}

func (data SendData) basicCheck(tx *Transaction, context *state.CheckState) *Response {
	if !data.Asset.IsValid() {
		r := errorResponse(errors.Wrapf(code.ErrUnknownAsset, "asset %d", data.Asset))
		return &r
	}
	if err := checkAmount(data.Value); err != nil {
		r := errorResponse(err)
		return &r
	}

	return nil
}

func (data SendData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	response := data.basicCheck(tx, checkState)
	if response != nil {
		return *response
	}

	if checkState.Accounts().GetBalance(sender, data.Asset).Cmp(data.Value) < 0 {
		return insufficientFunds(sender, data.Asset, data.Value)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Accounts.Transfer(sender, data.To, data.Asset, data.Value); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)

		tags = []abcTypes.EventAttribute{
			{Key: []byte("tx.to"), Value: []byte(hex.EncodeToString(data.To[:])), Index: true},
			{Key: []byte("tx.asset"), Value: []byte(data.Asset.Symbol()), Index: true},
		}
	}

	return Response{
		Code: code.OK,
		Tags: tags,
	}
}

// ApproveData sets the allowance of Spender over the sender's Asset.
type ApproveData struct {
	Spender types.Address
	Asset   types.AssetID
	Value   *big.Int
}

func (data ApproveData) TxType() TxType {
	return TypeApprove
}

func (data ApproveData) Gas() int64 {
	return gasApprove
}

func (data ApproveData) String() string {
	return fmt.Sprintf("APPROVE spender:%s asset:%s value:%s",
		data.Spender.String(), data.Asset.Symbol(), data.Value.String())
}

func (data ApproveData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()

	if !data.Asset.IsValid() {
		return errorResponse(errors.Wrapf(code.ErrUnknownAsset, "asset %d", data.Asset))
	}
	if err := checkRange(data.Value); err != nil {
		return errorResponse(err)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		deliverState.Accounts.Approve(sender, data.Spender, data.Asset, data.Value)
		deliverState.Accounts.SetNonce(sender, tx.Nonce)

		tags = []abcTypes.EventAttribute{
			{Key: []byte("tx.spender"), Value: []byte(hex.EncodeToString(data.Spender[:])), Index: true},
		}
	}

	return Response{
		Code: code.OK,
		Tags: tags,
	}
}
