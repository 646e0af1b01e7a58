package transaction

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/types"
	"golang.org/x/crypto/sha3"
)

// TxType of transaction is determined by a single byte.
type TxType byte

func (t TxType) String() string {
	return "0x" + hex.EncodeToString([]byte{byte(t)})
}

func (t TxType) UInt64() uint64 {
	return uint64(t)
}

const (
	TypeSend             TxType = 0x01
	TypeApprove          TxType = 0x02
	TypeMintToken        TxType = 0x03
	TypeBurnToken        TxType = 0x04
	TypeStake            TxType = 0x05
	TypeUnstake          TxType = 0x06
	TypeClaimReward      TxType = 0x07
	TypeNotifyReward     TxType = 0x08
	TypePlaceTiles       TxType = 0x09
	TypeSetColors        TxType = 0x0A
	TypeSetColor         TxType = 0x0B
	TypeMintGrid         TxType = 0x0C
	TypeTransferGrid     TxType = 0x0D
	TypeInitializeMinter TxType = 0x0E
	TypeUpdatePeriod     TxType = 0x0F
	TypeDistributeFees   TxType = 0x10
	TypeBorrow           TxType = 0x11
	TypeRepay            TxType = 0x12
	TypeExercise         TxType = 0x13
)

const (
	gasBase = 10

	gasSend    = 1
	gasApprove = 1

	gasMintToken = 2
	gasBurnToken = 2
	gasStake     = 3
	gasUnstake   = 3
	gasBorrow    = 3
	gasRepay     = 3
	gasExercise  = 2

	gasClaimReward    = 3
	gasNotifyReward   = 5
	gasDistributeFees = 5

	gasPlaceTilesBase = 2
	gasSetColors      = 5
	gasSetColor       = 1
	gasMintGrid       = 10
	gasTransferGrid   = 2

	gasInitializeMinter = 5
	gasUpdatePeriod     = 5
)

var (
	ErrInvalidSig = errors.New("invalid transaction v, r, s values")
)

type Transaction struct {
	Nonce         uint64
	ChainID       types.ChainID
	Type          TxType
	Data          RawData
	Payload       []byte
	SignatureData []byte

	decodedData Data
	sig         *Signature
	sender      *types.Address
}

type Signature struct {
	V *big.Int
	R *big.Int
	S *big.Int
}

type RawData []byte

// Block is the part of the block header a transaction may depend on.
type Block struct {
	Height uint64
	Time   uint64
}

type Data interface {
	String() string
	Run(tx *Transaction, context state.Interface, block Block) Response
	TxType() TxType
	Gas() int64
}

func (tx *Transaction) Serialize() ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

func (tx *Transaction) Gas() int64 {
	return gasBase + int64(len(tx.Payload))/1000 + tx.decodedData.Gas()
}

func (tx *Transaction) String() string {
	sender, _ := tx.Sender()

	return fmt.Sprintf("TX nonce:%d from:%s payload:%s data:%s",
		tx.Nonce, sender.String(), tx.Payload, tx.decodedData.String())
}

func (tx *Transaction) Sign(prv *ecdsa.PrivateKey) error {
	h := tx.Hash()
	sig, err := crypto.Sign(h[:], prv)
	if err != nil {
		return err
	}

	tx.SetSignature(sig)

	return nil
}

func (tx *Transaction) SetSignature(sig []byte) {
	if tx.sig == nil {
		tx.sig = &Signature{}
	}

	tx.sig.R = new(big.Int).SetBytes(sig[:32])
	tx.sig.S = new(big.Int).SetBytes(sig[32:64])
	tx.sig.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.sender = nil

	data, err := rlp.EncodeToBytes(tx.sig)
	if err != nil {
		panic(err)
	}

	tx.SignatureData = data
}

func (tx *Transaction) MustSender() types.Address {
	sender, err := tx.Sender()
	if err != nil {
		panic(err)
	}
	return sender
}

func (tx *Transaction) Sender() (types.Address, error) {
	if tx.sender != nil {
		return *tx.sender, nil
	}
	if tx.sig == nil {
		return types.Address{}, ErrInvalidSig
	}

	sender, err := RecoverPlain(tx.Hash(), tx.sig.R, tx.sig.S, tx.sig.V)
	if err != nil {
		return types.Address{}, err
	}

	tx.sender = &sender
	return sender, nil
}

func (tx *Transaction) Hash() types.Hash {
	return rlpHash([]interface{}{
		tx.Nonce,
		tx.ChainID,
		tx.Type,
		tx.Data,
		tx.Payload,
	})
}

func (tx *Transaction) SetDecodedData(data Data) {
	tx.decodedData = data
}

func (tx *Transaction) GetDecodedData() Data {
	return tx.decodedData
}

func RecoverPlain(sighash types.Hash, R, S, Vb *big.Int) (types.Address, error) {
	if R == nil || S == nil || Vb == nil || Vb.BitLen() > 8 {
		return types.Address{}, ErrInvalidSig
	}
	V := byte(Vb.Uint64() - 27)
	if !crypto.ValidateSignatureValues(V, R, S, true) {
		return types.Address{}, ErrInvalidSig
	}
	// encode the signature in uncompressed format
	r, s := R.Bytes(), S.Bytes()
	sig := make([]byte, crypto.SignatureLength)
	copy(sig[32-len(r):32], r)
	copy(sig[64-len(s):64], s)
	sig[64] = V

	pub, err := crypto.Ecrecover(sighash[:], sig)
	if err != nil {
		return types.Address{}, err
	}
	if len(pub) == 0 || pub[0] != 4 {
		return types.Address{}, errors.New("invalid public key")
	}
	var addr types.Address
	copy(addr[:], crypto.Keccak256(pub[1:])[12:])
	return addr, nil
}

func rlpHash(x interface{}) (h types.Hash) {
	hw := sha3.NewLegacyKeccak256()
	err := rlp.Encode(hw, x)
	if err != nil {
		panic(err)
	}
	hw.Sum(h[:0])
	return h
}
