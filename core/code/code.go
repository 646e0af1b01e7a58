package code

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/fixed"
	"github.com/tilemint/tilemint-node/formula"
)

// Codes for transaction checks and delivers responses
const (
	// general
	OK                uint32 = 0
	WrongNonce        uint32 = 101
	UnknownAsset      uint32 = 102
	TxTooLarge        uint32 = 105
	DecodeError       uint32 = 106
	InsufficientFunds uint32 = 107
	TxPayloadTooLarge uint32 = 109
	WrongChainID      uint32 = 115
	ZeroAmount        uint32 = 118
	AmountOverflow    uint32 = 119
	NotOwner          uint32 = 120
	WrongSignature    uint32 = 121
	UnknownTxType     uint32 = 122

	// allowances
	InsufficientAllowance uint32 = 150

	// bonding curve
	SlippageExceeded   uint32 = 301
	InsufficientSupply uint32 = 302
	SupplyExhausted    uint32 = 303

	// loans
	InsufficientCredit uint32 = 311
	RepayExceedsDebt   uint32 = 312
	CollateralLocked   uint32 = 313

	// rewards
	InvalidDuration         uint32 = 401
	UnknownRewarder         uint32 = 402
	RewardTooSmall          uint32 = 403
	InsufficientPoolBalance uint32 = 404

	// grid
	LengthMismatch uint32 = 501
	OutOfBounds    uint32 = 502
	InvalidColor   uint32 = 503
	GridNotFound   uint32 = 504
	TooManyTiles   uint32 = 505

	// emission
	AlreadyInitialized uint32 = 601
	NotInitialized     uint32 = 602

	// invariants
	InvariantViolation uint32 = 900
)

// Kind groups error codes by how a caller should react to them.
type Kind byte

const (
	// KindValidation is bad input shape or range.
	KindValidation Kind = iota + 1
	// KindInsufficientFunds is a balance or allowance that is too low.
	KindInsufficientFunds
	// KindState is a call that does not fit the current state.
	KindState
	// KindInvariant is a broken accounting invariant. It is never recoverable.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindState:
		return "state"
	case KindInvariant:
		return "invariant"
	}
	return "unknown"
}

// Error is a failed state operation with a stable response code.
type Error struct {
	Code    uint32
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so wrapped copies compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// kinds maps every code created with newError to its kind.
var kinds = map[uint32]Kind{}

func newError(c uint32, k Kind, msg string) *Error {
	kinds[c] = k
	return &Error{Code: c, Kind: k, Message: msg}
}

// KindOf returns the kind of a response code. Codes without a registered
// error are validation failures, except InvariantViolation.
func KindOf(c uint32) Kind {
	if k, ok := kinds[c]; ok {
		return k
	}
	if c == InvariantViolation {
		return KindInvariant
	}
	return KindValidation
}

var (
	ErrWrongNonce     = newError(WrongNonce, KindValidation, "unexpected nonce")
	ErrWrongChainID   = newError(WrongChainID, KindValidation, "wrong chain id")
	ErrDecode         = newError(DecodeError, KindValidation, "failed to decode")
	ErrUnknownAsset   = newError(UnknownAsset, KindValidation, "unknown asset")
	ErrZeroAmount     = newError(ZeroAmount, KindValidation, "amount must be positive")
	ErrAmountOverflow = newError(AmountOverflow, KindValidation, "amount out of range")
	ErrNotOwner       = newError(NotOwner, KindValidation, "sender is not the privileged owner")
	ErrWrongSignature = newError(WrongSignature, KindValidation, "wrong signature")
	ErrUnknownTxType  = newError(UnknownTxType, KindValidation, "unknown transaction type")
	ErrTxTooLarge     = newError(TxTooLarge, KindValidation, "transaction is too large")
	ErrPayloadTooLong = newError(TxPayloadTooLarge, KindValidation, "payload is too large")

	ErrInsufficientBalance   = newError(InsufficientFunds, KindInsufficientFunds, "insufficient balance")
	ErrInsufficientAllowance = newError(InsufficientAllowance, KindInsufficientFunds, "insufficient allowance")

	ErrSlippageExceeded   = newError(SlippageExceeded, KindValidation, "output is below the requested minimum")
	ErrInsufficientSupply = newError(InsufficientSupply, KindInsufficientFunds, "amount exceeds total supply")
	ErrSupplyExhausted    = newError(SupplyExhausted, KindValidation, "curve supply exhausted")

	ErrInsufficientCredit = newError(InsufficientCredit, KindInsufficientFunds, "amount exceeds borrow credit")
	ErrRepayExceedsDebt   = newError(RepayExceedsDebt, KindValidation, "amount exceeds debt")
	ErrCollateralLocked   = newError(CollateralLocked, KindState, "stake is collateral of a debt")

	ErrInvalidDuration         = newError(InvalidDuration, KindValidation, "duration must be positive")
	ErrUnknownRewarder         = newError(UnknownRewarder, KindValidation, "unknown rewarder")
	ErrRewardTooSmall          = newError(RewardTooSmall, KindValidation, "reward rate rounds to zero")
	ErrInsufficientPoolBalance = newError(InsufficientPoolBalance, KindInvariant, "reward pool balance is below the owed amount")

	ErrLengthMismatch = newError(LengthMismatch, KindValidation, "coordinate arrays differ in length")
	ErrOutOfBounds    = newError(OutOfBounds, KindValidation, "coordinate out of bounds")
	ErrInvalidColor   = newError(InvalidColor, KindValidation, "invalid color")
	ErrGridNotFound   = newError(GridNotFound, KindValidation, "grid not found")
	ErrTooManyTiles   = newError(TooManyTiles, KindValidation, "too many tiles in one placement")

	ErrAlreadyInitialized = newError(AlreadyInitialized, KindState, "already initialized")
	ErrNotInitialized     = newError(NotInitialized, KindState, "not initialized")

	ErrInvariant = newError(InvariantViolation, KindInvariant, "state invariant violated")
)

// Of returns the response code and kind of err. Errors that carry no code
// are reported as invariant violations since nothing expects them.
func Of(err error) (uint32, Kind) {
	if err == nil {
		return OK, 0
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code, e.Kind
	}

	return InvariantViolation, KindInvariant
}

// FromMath turns a 256-bit overflow into an amount error and an exhausted
// curve into a validation error. Underflow and
// division by zero stay as they are: checks run before every subtraction,
// so reaching them means the accounting is broken.
func FromMath(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fixed.ErrOverflow):
		return errors.Wrap(ErrAmountOverflow, err.Error())
	case errors.Is(err, formula.ErrSupplyExhausted):
		return ErrSupplyExhausted
	}
	return err
}

// IsInvariant reports whether err must halt the node.
func IsInvariant(err error) bool {
	_, kind := Of(err)
	return kind == KindInvariant
}

type wrongNonce struct {
	Code          string `json:"code,omitempty"`
	ExpectedNonce string `json:"expected_nonce,omitempty"`
	GotNonce      string `json:"got_nonce,omitempty"`
}

func NewWrongNonce(expectedNonce string, gotNonce string) *wrongNonce {
	return &wrongNonce{Code: strconv.Itoa(int(WrongNonce)), ExpectedNonce: expectedNonce, GotNonce: gotNonce}
}

type insufficientFunds struct {
	Code   string `json:"code,omitempty"`
	Sender string `json:"sender,omitempty"`
	Needed string `json:"needed_value,omitempty"`
	Asset  string `json:"asset,omitempty"`
}

func NewInsufficientFunds(sender string, needed string, asset string) *insufficientFunds {
	return &insufficientFunds{Code: strconv.Itoa(int(InsufficientFunds)), Sender: sender, Needed: needed, Asset: asset}
}

type generic struct {
	Code string `json:"code,omitempty"`
	Kind string `json:"kind,omitempty"`
}

// Info renders the JSON put into the Info field of a failed response.
func Info(err error) string {
	var body interface{}

	var e *Error
	if errors.As(err, &e) {
		body = generic{Code: strconv.Itoa(int(e.Code)), Kind: e.Kind.String()}
	} else {
		body = generic{Code: strconv.Itoa(int(InvariantViolation)), Kind: KindInvariant.String()}
	}

	return Encode(body)
}

// Encode marshals an info struct; it never fails for the types of this package.
func Encode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
