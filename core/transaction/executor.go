package transaction

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	abcTypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/types"
)

const (
	maxPayloadLength = 1024
	maxTxLength      = 16384 + maxPayloadLength
)

// Response represents standard response from tx delivery/check
type Response struct {
	Code      uint32                    `json:"code,omitempty"`
	Data      []byte                    `json:"data,omitempty"`
	Log       string                    `json:"log,omitempty"`
	Info      string                    `json:"-"`
	GasWanted int64                     `json:"gas_wanted,omitempty"`
	GasUsed   int64                     `json:"gas_used,omitempty"`
	Tags      []abcTypes.EventAttribute `json:"tags,omitempty"`
}

type Executor struct {
	decodeTxFunc func(txType TxType) (Data, bool)
}

func NewExecutor(decodeTxFunc func(txType TxType) (Data, bool)) *Executor {
	return &Executor{decodeTxFunc: decodeTxFunc}
}

// RunTx executes transaction in given context. A *state.CheckState context
// only validates; a *state.State context applies the transaction after it
// validates. An invariant violation while delivering panics.
func (e *Executor) RunTx(context state.Interface, rawTx []byte, block Block, currentMempool *sync.Map, notSaveTags bool) Response {
	lenRawTx := len(rawTx)
	if lenRawTx > maxTxLength {
		return Response{
			Code: code.TxTooLarge,
			Log:  fmt.Sprintf("TX length is over %d bytes", maxTxLength),
			Info: code.Info(code.ErrTxTooLarge),
		}
	}

	tx, err := e.DecodeFromBytes(rawTx)
	if err != nil {
		return Response{
			Code: code.DecodeError,
			Log:  err.Error(),
			Info: code.Info(code.ErrDecode),
		}
	}

	if tx.ChainID != types.CurrentChainID {
		return Response{
			Code: code.WrongChainID,
			Log:  "Wrong chain id",
			Info: code.Info(code.ErrWrongChainID),
		}
	}

	lenPayload := len(tx.Payload)
	if lenPayload > maxPayloadLength {
		return Response{
			Code: code.TxPayloadTooLarge,
			Log:  fmt.Sprintf("TX payload length is over %d bytes", maxPayloadLength),
			Info: code.Info(code.ErrPayloadTooLong),
		}
	}

	sender, err := tx.Sender()
	if err != nil {
		return Response{
			Code: code.WrongSignature,
			Log:  err.Error(),
			Info: code.Info(code.ErrWrongSignature),
		}
	}

	checkState, isCheck := checkContext(context)

	if expectedNonce := checkState.Accounts().GetNonce(sender) + 1; expectedNonce != tx.Nonce {
		return Response{
			Code: code.WrongNonce,
			Log:  fmt.Sprintf("Unexpected nonce. Expected: %d, got %d.", expectedNonce, tx.Nonce),
			Info: EncodeError(code.NewWrongNonce(strconv.FormatUint(expectedNonce, 10), strconv.FormatUint(tx.Nonce, 10))),
		}
	}

	response := tx.decodedData.Run(tx, context, block)
	if !isCheck && code.KindOf(response.Code) == code.KindInvariant {
		panic(fmt.Sprintf("tx %X: %s", tx.Hash(), response.Log))
	}

	if response.Code == code.OK && isCheck && currentMempool != nil {
		// check if mempool already has transactions from this address
		if _, has := currentMempool.LoadOrStore(sender, true); has {
			return Response{
				Code: code.WrongNonce,
				Log:  fmt.Sprintf("Tx from %s already exists in mempool", sender.String()),
				Info: code.Info(code.ErrWrongNonce),
			}
		}
	}

	if notSaveTags || isCheck {
		response.Tags = nil
	} else if response.Code == code.OK {
		response.Tags = append(response.Tags,
			abcTypes.EventAttribute{Key: []byte("tx.from"), Value: []byte(hex.EncodeToString(sender[:])), Index: true},
			abcTypes.EventAttribute{Key: []byte("tx.type"), Value: []byte(hex.EncodeToString([]byte{byte(tx.decodedData.TxType())})), Index: true},
		)
	}

	response.GasUsed = tx.Gas()
	response.GasWanted = response.GasUsed

	return response
}

func checkContext(context state.Interface) (*state.CheckState, bool) {
	if checkState, ok := context.(*state.CheckState); ok {
		return checkState, true
	}
	return state.NewCheckState(context.(*state.State)), false
}

func deliverContext(context state.Interface) *state.State {
	deliverState, _ := context.(*state.State)
	return deliverState
}

// checkRange rejects amounts that do not fit 256 bits.
func checkRange(value *big.Int) error {
	if value == nil {
		return code.ErrDecode
	}
	if value.BitLen() > 256 {
		return errors.Wrapf(code.ErrAmountOverflow, "value %s", value)
	}
	return nil
}

// checkAmount is checkRange for amounts that must be positive.
func checkAmount(value *big.Int) error {
	if err := checkRange(value); err != nil {
		return err
	}
	if value.Sign() == 0 {
		return code.ErrZeroAmount
	}
	return nil
}

// errorResponse renders a failed state operation.
func errorResponse(err error) Response {
	c, _ := code.Of(err)
	return Response{
		Code: c,
		Log:  err.Error(),
		Info: code.Info(err),
	}
}

func insufficientFunds(sender types.Address, asset types.AssetID, needed fmt.Stringer) Response {
	err := errors.Wrapf(code.ErrInsufficientBalance, "%s wanted %s %s", sender, needed, asset.Symbol())
	return Response{
		Code: code.InsufficientFunds,
		Log:  err.Error(),
		Info: EncodeError(code.NewInsufficientFunds(sender.String(), needed.String(), asset.Symbol())),
	}
}

// EncodeError encodes error to json
func EncodeError(data interface{}) string {
	marshaled, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return string(marshaled)
}

func encodeData(data interface{}) []byte {
	marshaled, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return marshaled
}
