package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

func GetData(txType TxType) (Data, bool) {
	switch txType {
	case TypeSend:
		return &SendData{}, true
	case TypeApprove:
		return &ApproveData{}, true
	case TypeMintToken:
		return &MintTokenData{}, true
	case TypeBurnToken:
		return &BurnTokenData{}, true
	case TypeStake:
		return &StakeData{}, true
	case TypeUnstake:
		return &UnstakeData{}, true
	case TypeClaimReward:
		return &ClaimRewardData{}, true
	case TypeNotifyReward:
		return &NotifyRewardData{}, true
	case TypePlaceTiles:
		return &PlaceTilesData{}, true
	case TypeSetColors:
		return &SetColorsData{}, true
	case TypeSetColor:
		return &SetColorData{}, true
	case TypeMintGrid:
		return &MintGridData{}, true
	case TypeTransferGrid:
		return &TransferGridData{}, true
	case TypeInitializeMinter:
		return &InitializeMinterData{}, true
	case TypeUpdatePeriod:
		return &UpdatePeriodData{}, true
	case TypeDistributeFees:
		return &DistributeFeesData{}, true
	case TypeBorrow:
		return &BorrowData{}, true
	case TypeRepay:
		return &RepayData{}, true
	case TypeExercise:
		return &ExerciseData{}, true
	default:
		return nil, false
	}
}

func (e *Executor) DecodeFromBytes(buf []byte) (*Transaction, error) {
	tx, err := e.DecodeFromBytesWithoutSig(buf)
	if err != nil {
		return nil, err
	}

	tx.sig = &Signature{}
	if err := rlp.DecodeBytes(tx.SignatureData, tx.sig); err != nil {
		return nil, err
	}

	return tx, nil
}

func (e *Executor) DecodeFromBytesWithoutSig(buf []byte) (*Transaction, error) {
	var tx Transaction
	err := rlp.DecodeBytes(buf, &tx)

	if err != nil {
		return nil, err
	}

	if tx.Data == nil {
		return nil, errors.New("incorrect tx data")
	}

	d, ok := e.decodeTxFunc(tx.Type)

	if !ok {
		return nil, fmt.Errorf("tx type %x is not registered", tx.Type)
	}

	err = rlp.DecodeBytes(tx.Data, d)

	if err != nil {
		return nil, err
	}

	tx.SetDecodedData(d)

	return &tx, nil
}
