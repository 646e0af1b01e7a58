package transaction

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	abcTypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/types"
)

func amountsData(amounts map[types.AssetID]*big.Int) []byte {
	result := make(map[string]string, len(amounts))
	for asset, amount := range amounts {
		result[asset.Symbol()] = amount.String()
	}
	return encodeData(result)
}

// ClaimRewardData claims every pending reward asset of one rewarder.
type ClaimRewardData struct {
	Rewarder types.RewarderID
}

func (data ClaimRewardData) TxType() TxType {
	return TypeClaimReward
}

func (data ClaimRewardData) Gas() int64 {
	return gasClaimReward
}

func (data ClaimRewardData) String() string {
	return fmt.Sprintf("CLAIM REWARD rewarder:%s", data.Rewarder)
}

func (data ClaimRewardData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()

	if !data.Rewarder.IsValid() {
		return errorResponse(errors.Wrapf(code.ErrUnknownRewarder, "rewarder %d", data.Rewarder))
	}

	deliverState := deliverContext(context)
	if deliverState == nil {
		return Response{Code: code.OK}
	}

	claimed, err := deliverState.Rewarders.ClaimAll(data.Rewarder, sender, block.Time)
	if err != nil {
		return errorResponse(err)
	}
	deliverState.Accounts.SetNonce(sender, tx.Nonce)

	return Response{
		Code: code.OK,
		Data: amountsData(claimed),
		Tags: []abcTypes.EventAttribute{
			{Key: []byte("tx.rewarder"), Value: []byte(data.Rewarder.String()), Index: true},
		},
	}
}

// NotifyRewardData funds a reward stream from the owner's balance.
type NotifyRewardData struct {
	Rewarder types.RewarderID
	Asset    types.AssetID
	Value    *big.Int
	Duration uint64
}

func (data NotifyRewardData) TxType() TxType {
	return TypeNotifyReward
}

func (data NotifyRewardData) Gas() int64 {
	return gasNotifyReward
}

func (data NotifyRewardData) String() string {
	return fmt.Sprintf("NOTIFY REWARD rewarder:%s asset:%s value:%s duration:%d",
		data.Rewarder, data.Asset.Symbol(), data.Value, data.Duration)
}

func (data NotifyRewardData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()
	checkState, _ := checkContext(context)

	if sender != checkState.App().Owner() {
		return errorResponse(code.ErrNotOwner)
	}
	if err := checkAmount(data.Value); err != nil {
		return errorResponse(err)
	}
	if err := checkState.Rewarders().CheckNotifyFrom(data.Rewarder, sender, data.Asset, data.Value, data.Duration, block.Time); err != nil {
		return errorResponse(err)
	}

	var tags []abcTypes.EventAttribute
	if deliverState := deliverContext(context); deliverState != nil {
		if err := deliverState.Rewarders.NotifyReward(data.Rewarder, sender, data.Asset, data.Value, data.Duration, block.Time); err != nil {
			return errorResponse(err)
		}
		deliverState.Accounts.SetNonce(sender, tx.Nonce)

		tags = []abcTypes.EventAttribute{
			{Key: []byte("tx.rewarder"), Value: []byte(data.Rewarder.String()), Index: true},
			{Key: []byte("tx.asset"), Value: []byte(data.Asset.Symbol()), Index: true},
		}
	}

	return Response{
		Code: code.OK,
		Tags: tags,
	}
}

// DistributeFeesData streams the accrued fees to token stakers. Anyone may
// send it.
type DistributeFeesData struct{}

func (data DistributeFeesData) TxType() TxType {
	return TypeDistributeFees
}

func (data DistributeFeesData) Gas() int64 {
	return gasDistributeFees
}

func (data DistributeFeesData) String() string {
	return "DISTRIBUTE FEES"
}

func (data DistributeFeesData) Run(tx *Transaction, context state.Interface, block Block) Response {
	sender, _ := tx.Sender()

	deliverState := deliverContext(context)
	if deliverState == nil {
		return Response{Code: code.OK}
	}

	distributed, err := deliverState.Fees.Distribute(block.Time)
	if err != nil {
		return errorResponse(err)
	}
	deliverState.Accounts.SetNonce(sender, tx.Nonce)

	return Response{
		Code: code.OK,
		Data: amountsData(distributed),
	}
}
