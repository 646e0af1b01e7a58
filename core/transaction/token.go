package transaction

import (
	"fmt"
	"math/big"

	abcTypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/state/token"
	"github.com/tilemint/tilemint-node/core/types"
)

type quoteResult struct {
	In  string `json:"in"`
	Out string `json:"out"`
	Fee string `json:"fee"`
}

func quoteData(q *token.Quote) []byte {
	return encodeData(quoteResult{In: q.In.String(), Out: q.Out.String(), Fee: q.Fee.String()})
}

func quoteTags(q *token.Quote) []abcTypes.EventAttribute {
	return []abcTypes.EventAttribute{
		{Key: []byte("tx.return"), Value: []byte(q.Out.String())},
		{Key: []byte("tx.fee"), Value: []byte(q.Fee.String())},
	}
}

// MintTokenData buys TOKEN from the curve for ValueIn BASE.
type MintTokenData struct {
	ValueIn         *big.Int
	MinimumValueOut *big.Int
	To              types.Address
}

func (data MintTokenData) TxType() TxType {
	return TypeMintToken
}

func (data MintTokenData) Gas() int64 {
	return gasMintToken
}

func (data MintTokenData) String() string {
	return fmt.Sprintf("MINT TOKEN in:%s min_out:%s to:%s", data.ValueIn, data.MinimumValueOut, data.To)
}

func (data MintTokenData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkAmount(data.ValueIn); err != nil {
		return errorResponse(err)
	}
	if err := checkRange(data.MinimumValueOut); err != nil {
		return errorResponse(err)
	}

	to := data.To
	if to.IsZero() {
		to = sender
	}

	quote, err := checkState.Token().CheckMint(sender, data.ValueIn, data.MinimumValueOut)
	if err != nil {
		return errorResponse(err)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		quote, err = deliverState.Token.Mint(sender, data.ValueIn, data.MinimumValueOut, to)
		if err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
		tags = quoteTags(quote)
	}

	return Response{
		Code: code.OK,
		Data: quoteData(quote),
		Tags: tags,
	}
}

// BurnTokenData sells ValueIn TOKEN back to the curve.
type BurnTokenData struct {
	ValueIn         *big.Int
	MinimumValueOut *big.Int
	To              types.Address
}

func (data BurnTokenData) TxType() TxType {
	return TypeBurnToken
}

func (data BurnTokenData) Gas() int64 {
	return gasBurnToken
}

func (data BurnTokenData) String() string {
	return fmt.Sprintf("BURN TOKEN in:%s min_out:%s to:%s", data.ValueIn, data.MinimumValueOut, data.To)
}

func (data BurnTokenData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkAmount(data.ValueIn); err != nil {
		return errorResponse(err)
	}
	if err := checkRange(data.MinimumValueOut); err != nil {
		return errorResponse(err)
	}

	to := data.To
	if to.IsZero() {
		to = sender
	}

	quote, err := checkState.Token().CheckBurn(sender, data.ValueIn, data.MinimumValueOut)
	if err != nil {
		return errorResponse(err)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		quote, err = deliverState.Token.Burn(sender, data.ValueIn, data.MinimumValueOut, to)
		if err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
		tags = quoteTags(quote)
	}

	return Response{
		Code: code.OK,
		Data: quoteData(quote),
		Tags: tags,
	}
}

type StakeData struct {
	Value *big.Int
}

func (data StakeData) TxType() TxType {
	return TypeStake
}

func (data StakeData) Gas() int64 {
	return gasStake
}

func (data StakeData) String() string {
	return fmt.Sprintf("STAKE value:%s", data.Value)
}

func (data StakeData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkAmount(data.Value); err != nil {
		return errorResponse(err)
	}
	if err := checkState.Token().CheckStake(sender, data.Value); err != nil {
		return errorResponse(err)
	}

	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Token.Stake(sender, data.Value, block.Time); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
	}

	return Response{Code: code.OK}
}

type UnstakeData struct {
	Value *big.Int
}

func (data UnstakeData) TxType() TxType {
	return TypeUnstake
}

func (data UnstakeData) Gas() int64 {
	return gasUnstake
}

func (data UnstakeData) String() string {
	return fmt.Sprintf("UNSTAKE value:%s", data.Value)
}

func (data UnstakeData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkAmount(data.Value); err != nil {
		return errorResponse(err)
	}
	if err := checkState.Token().CheckUnstake(sender, data.Value); err != nil {
		return errorResponse(err)
	}

	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Token.Unstake(sender, data.Value, block.Time); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
	}

	return Response{Code: code.OK}
}

// BorrowData borrows Value BASE from the reserve against the sender's stake.
type BorrowData struct {
	Value *big.Int
}

func (data BorrowData) TxType() TxType {
	return TypeBorrow
}

func (data BorrowData) Gas() int64 {
	return gasBorrow
}

func (data BorrowData) String() string {
	return fmt.Sprintf("BORROW value:%s", data.Value)
}

func (data BorrowData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkAmount(data.Value); err != nil {
		return errorResponse(err)
	}
	if err := checkState.Token().CheckBorrow(sender, data.Value); err != nil {
		return errorResponse(err)
	}

	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Token.Borrow(sender, data.Value); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
	}

	return Response{Code: code.OK}
}

// RepayData pays Value BASE of the sender's debt back.
type RepayData struct {
	Value *big.Int
}

func (data RepayData) TxType() TxType {
	return TypeRepay
}

func (data RepayData) Gas() int64 {
	return gasRepay
}

func (data RepayData) String() string {
	return fmt.Sprintf("REPAY value:%s", data.Value)
}

func (data RepayData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkAmount(data.Value); err != nil {
		return errorResponse(err)
	}
	if err := checkState.Token().CheckRepay(sender, data.Value); err != nil {
		return errorResponse(err)
	}

	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Token.Repay(sender, data.Value); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
	}

	return Response{Code: code.OK}
}

// ExerciseData turns Value OTOKEN of the sender into TOKEN for To, paying
// the floor price in BASE.
type ExerciseData struct {
	Value *big.Int
	To    types.Address
}

func (data ExerciseData) TxType() TxType {
	return TypeExercise
}

func (data ExerciseData) Gas() int64 {
	return gasExercise
}

func (data ExerciseData) String() string {
	return fmt.Sprintf("EXERCISE value:%s to:%s", data.Value, data.To)
}

func (data ExerciseData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkAmount(data.Value); err != nil {
		return errorResponse(err)
	}

	to := data.To
	if to.IsZero() {
		to = sender
	}

	base, err := checkState.Token().CheckExercise(sender, data.Value)
	if err != nil {
		return errorResponse(err)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		base, err = deliverState.Token.Exercise(sender, data.Value, to)
		if err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
		tags = []abcTypes.EventAttribute{{Key: []byte("tx.base_in"), Value: []byte(base.String())}}
	}

	return Response{
		Code: code.OK,
		Data: encodeData(quoteResult{In: base.String(), Out: data.Value.String(), Fee: "0"}),
		Tags: tags,
	}
}
