package transaction

import (
	"strconv"

	abcTypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state"
)

type InitializeMinterData struct{}

func (data InitializeMinterData) TxType() TxType {
	return TypeInitializeMinter
}

func (data InitializeMinterData) Gas() int64 {
	return gasInitializeMinter
}

func (data InitializeMinterData) String() string {
	return "INITIALIZE MINTER"
}

func (data InitializeMinterData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if err := checkState.Emission().CheckInitialize(sender); err != nil {
		return errorResponse(err)
	}

	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Emission.Initialize(sender, block.Time); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)
	}

	return Response{Code: code.OK}
}

// UpdatePeriodData emits the OTOKEN of an elapsed epoch. Anyone may send it;
// before the epoch ends it succeeds without effect.
type UpdatePeriodData struct{}

func (data UpdatePeriodData) TxType() TxType {
	return TypeUpdatePeriod
}

func (data UpdatePeriodData) Gas() int64 {
	return gasUpdatePeriod
}

func (data UpdatePeriodData) String() string {
	return "UPDATE PERIOD"
}

type emissionResult struct {
	ActivePeriod uint64 `json:"active_period"`
	Amount       string `json:"amount"`
	GridShare    string `json:"grid_share"`
	TokenShare   string `json:"token_share"`
}

func (data UpdatePeriodData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if _, err := checkState.Emission().CheckUpdatePeriod(block.Time); err != nil {
		return errorResponse(err)
	}

	deliverState := deliverContext(context)
	if deliverState == nil {
		return Response{Code: code.OK}
	}

	result, err := deliverState.Emission.UpdatePeriod(sender, block.Time)
	if err != nil {
		return errorResponse(err)
	}
	deliverState.Accounts.SetNonce(sender, tx.Nonce)

	if result == nil {
		return Response{Code: code.OK, Log: "epoch not elapsed"}
	}

	return Response{
		Code: code.OK,
		Data: encodeData(emissionResult{
			ActivePeriod: result.ActivePeriod,
			Amount:       result.Amount.String(),
			GridShare:    result.GridShare.String(),
			TokenShare:   result.TokenShare.String(),
		}),
		Tags: []abcTypes.EventAttribute{
			{Key: []byte("tx.active_period"), Value: []byte(strconv.FormatUint(result.ActivePeriod, 10)), Index: true},
		},
	}
}
