package events

import (
	"math/big"

	"github.com/tilemint/tilemint-node/core/types"
)

// Event type names
const (
	TypeRewardClaimEvent   = "tilemint/RewardClaimEvent"
	TypeRewardNotifyEvent  = "tilemint/RewardNotifyEvent"
	TypeTokenMintEvent     = "tilemint/TokenMintEvent"
	TypeTokenBurnEvent     = "tilemint/TokenBurnEvent"
	TypeTokenExerciseEvent = "tilemint/TokenExerciseEvent"
	TypeTokenLoanEvent     = "tilemint/TokenLoanEvent"
	TypeTilePlaceEvent     = "tilemint/TilePlaceEvent"
	TypeEmissionEvent      = "tilemint/EmissionEvent"
)

type Event interface {
	Type() string
	AddressString() string
	address() types.Address
	convert(addressID uint32) compactEvent
}

type compactEvent interface {
	compile(address [20]byte) Event
	addressID() uint32
}

type Events []Event

func amountBytes(s string) []byte {
	bi, ok := big.NewInt(0).SetString(s, 10)
	if !ok {
		return nil
	}
	return bi.Bytes()
}

func amountString(b []byte) string {
	return big.NewInt(0).SetBytes(b).String()
}

type rewardClaim struct {
	AddressID uint32
	Rewarder  uint32
	Asset     uint32
	Amount    []byte
}

func (r *rewardClaim) compile(address [20]byte) Event {
	event := new(RewardClaimEvent)
	event.Address = address
	event.Rewarder = types.RewarderID(r.Rewarder).String()
	event.Asset = types.AssetID(r.Asset).Symbol()
	event.Amount = amountString(r.Amount)
	return event
}

func (r *rewardClaim) addressID() uint32 {
	return r.AddressID
}

// RewardClaimEvent is a payout of pending reward to an account.
type RewardClaimEvent struct {
	Address  types.Address `json:"address"`
	Rewarder string        `json:"rewarder"`
	Asset    string        `json:"asset"`
	Amount   string        `json:"amount"`
}

func (re *RewardClaimEvent) Type() string {
	return TypeRewardClaimEvent
}

func (re *RewardClaimEvent) AddressString() string {
	return re.Address.String()
}

func (re *RewardClaimEvent) address() types.Address {
	return re.Address
}

func (re *RewardClaimEvent) convert(addressID uint32) compactEvent {
	result := new(rewardClaim)
	result.AddressID = addressID
	if id, ok := types.RewarderByName(re.Rewarder); ok {
		result.Rewarder = uint32(id)
	}
	if asset, ok := types.AssetBySymbol(re.Asset); ok {
		result.Asset = uint32(asset)
	}
	result.Amount = amountBytes(re.Amount)
	return result
}

type rewardNotify struct {
	AddressID    uint32
	Rewarder     uint32
	Asset        uint32
	Amount       []byte
	Rate         []byte
	PeriodFinish uint64
}

func (r *rewardNotify) compile(address [20]byte) Event {
	event := new(RewardNotifyEvent)
	event.Funder = address
	event.Rewarder = types.RewarderID(r.Rewarder).String()
	event.Asset = types.AssetID(r.Asset).Symbol()
	event.Amount = amountString(r.Amount)
	event.Rate = amountString(r.Rate)
	event.PeriodFinish = r.PeriodFinish
	return event
}

func (r *rewardNotify) addressID() uint32 {
	return r.AddressID
}

// RewardNotifyEvent is a new linear reward period.
type RewardNotifyEvent struct {
	Funder       types.Address `json:"funder"`
	Rewarder     string        `json:"rewarder"`
	Asset        string        `json:"asset"`
	Amount       string        `json:"amount"`
	Rate         string        `json:"rate"`
	PeriodFinish uint64        `json:"period_finish"`
}

func (re *RewardNotifyEvent) Type() string {
	return TypeRewardNotifyEvent
}

func (re *RewardNotifyEvent) AddressString() string {
	return re.Funder.String()
}

func (re *RewardNotifyEvent) address() types.Address {
	return re.Funder
}

func (re *RewardNotifyEvent) convert(addressID uint32) compactEvent {
	result := new(rewardNotify)
	result.AddressID = addressID
	if id, ok := types.RewarderByName(re.Rewarder); ok {
		result.Rewarder = uint32(id)
	}
	if asset, ok := types.AssetBySymbol(re.Asset); ok {
		result.Asset = uint32(asset)
	}
	result.Amount = amountBytes(re.Amount)
	result.Rate = amountBytes(re.Rate)
	result.PeriodFinish = re.PeriodFinish
	return result
}

type tokenMint struct {
	AddressID uint32
	In        []byte
	Out       []byte
	Fee       []byte
}

func (t *tokenMint) compile(address [20]byte) Event {
	return &TokenMintEvent{
		Address:   address,
		BaseIn:    amountString(t.In),
		TokensOut: amountString(t.Out),
		Fee:       amountString(t.Fee),
	}
}

func (t *tokenMint) addressID() uint32 {
	return t.AddressID
}

// TokenMintEvent is a purchase from the bonding curve.
type TokenMintEvent struct {
	Address   types.Address `json:"address"`
	BaseIn    string        `json:"base_in"`
	TokensOut string        `json:"tokens_out"`
	Fee       string        `json:"fee"`
}

func (e *TokenMintEvent) Type() string {
	return TypeTokenMintEvent
}

func (e *TokenMintEvent) AddressString() string {
	return e.Address.String()
}

func (e *TokenMintEvent) address() types.Address {
	return e.Address
}

func (e *TokenMintEvent) convert(addressID uint32) compactEvent {
	return &tokenMint{
		AddressID: addressID,
		In:        amountBytes(e.BaseIn),
		Out:       amountBytes(e.TokensOut),
		Fee:       amountBytes(e.Fee),
	}
}

type tokenBurn struct {
	AddressID uint32
	In        []byte
	Out       []byte
	Fee       []byte
}

func (t *tokenBurn) compile(address [20]byte) Event {
	return &TokenBurnEvent{
		Address:  address,
		TokensIn: amountString(t.In),
		BaseOut:  amountString(t.Out),
		Fee:      amountString(t.Fee),
	}
}

func (t *tokenBurn) addressID() uint32 {
	return t.AddressID
}

// TokenBurnEvent is a sale back to the bonding curve.
type TokenBurnEvent struct {
	Address  types.Address `json:"address"`
	TokensIn string        `json:"tokens_in"`
	BaseOut  string        `json:"base_out"`
	Fee      string        `json:"fee"`
}

func (e *TokenBurnEvent) Type() string {
	return TypeTokenBurnEvent
}

func (e *TokenBurnEvent) AddressString() string {
	return e.Address.String()
}

func (e *TokenBurnEvent) address() types.Address {
	return e.Address
}

func (e *TokenBurnEvent) convert(addressID uint32) compactEvent {
	return &tokenBurn{
		AddressID: addressID,
		In:        amountBytes(e.TokensIn),
		Out:       amountBytes(e.BaseOut),
		Fee:       amountBytes(e.Fee),
	}
}

type tokenExercise struct {
	AddressID uint32
	Options   []byte
	BaseIn    []byte
}

func (t *tokenExercise) compile(address [20]byte) Event {
	return &TokenExerciseEvent{
		Address: address,
		Options: amountString(t.Options),
		BaseIn:  amountString(t.BaseIn),
	}
}

func (t *tokenExercise) addressID() uint32 {
	return t.AddressID
}

// TokenExerciseEvent is OTOKEN turned into TOKEN at the floor price. Options
// is both the OTOKEN burnt and the TOKEN received.
type TokenExerciseEvent struct {
	Address types.Address `json:"address"`
	Options string        `json:"options"`
	BaseIn  string        `json:"base_in"`
}

func (e *TokenExerciseEvent) Type() string {
	return TypeTokenExerciseEvent
}

func (e *TokenExerciseEvent) AddressString() string {
	return e.Address.String()
}

func (e *TokenExerciseEvent) address() types.Address {
	return e.Address
}

func (e *TokenExerciseEvent) convert(addressID uint32) compactEvent {
	return &tokenExercise{
		AddressID: addressID,
		Options:   amountBytes(e.Options),
		BaseIn:    amountBytes(e.BaseIn),
	}
}

// Loan actions
const (
	LoanBorrow = "borrow"
	LoanRepay  = "repay"
)

type tokenLoan struct {
	AddressID uint32
	Repay     bool
	Amount    []byte
	Debt      []byte
}

func (t *tokenLoan) compile(address [20]byte) Event {
	action := LoanBorrow
	if t.Repay {
		action = LoanRepay
	}
	return &TokenLoanEvent{
		Address: address,
		Action:  action,
		Amount:  amountString(t.Amount),
		Debt:    amountString(t.Debt),
	}
}

func (t *tokenLoan) addressID() uint32 {
	return t.AddressID
}

// TokenLoanEvent is BASE borrowed against or repaid to staked TOKEN. Debt is
// what the account owes afterwards.
type TokenLoanEvent struct {
	Address types.Address `json:"address"`
	Action  string        `json:"action"`
	Amount  string        `json:"amount"`
	Debt    string        `json:"debt"`
}

func (e *TokenLoanEvent) Type() string {
	return TypeTokenLoanEvent
}

func (e *TokenLoanEvent) AddressString() string {
	return e.Address.String()
}

func (e *TokenLoanEvent) address() types.Address {
	return e.Address
}

func (e *TokenLoanEvent) convert(addressID uint32) compactEvent {
	return &tokenLoan{
		AddressID: addressID,
		Repay:     e.Action == LoanRepay,
		Amount:    amountBytes(e.Amount),
		Debt:      amountBytes(e.Debt),
	}
}

type tilePlace struct {
	AddressID uint32
	Grid      uint32
	Tiles     uint32
	Color     uint32
	Cost      []byte
}

func (t *tilePlace) compile(address [20]byte) Event {
	return &TilePlaceEvent{
		Address: address,
		Grid:    types.GridID(t.Grid),
		Tiles:   t.Tiles,
		Color:   t.Color,
		Cost:    amountString(t.Cost),
	}
}

func (t *tilePlace) addressID() uint32 {
	return t.AddressID
}

// TilePlaceEvent is one placement batch credited to Address.
type TilePlaceEvent struct {
	Address types.Address `json:"address"`
	Grid    types.GridID  `json:"grid"`
	Tiles   uint32        `json:"tiles"`
	Color   uint32        `json:"color"`
	Cost    string        `json:"cost"`
}

func (e *TilePlaceEvent) Type() string {
	return TypeTilePlaceEvent
}

func (e *TilePlaceEvent) AddressString() string {
	return e.Address.String()
}

func (e *TilePlaceEvent) address() types.Address {
	return e.Address
}

func (e *TilePlaceEvent) convert(addressID uint32) compactEvent {
	return &tilePlace{
		AddressID: addressID,
		Grid:      uint32(e.Grid),
		Tiles:     e.Tiles,
		Color:     e.Color,
		Cost:      amountBytes(e.Cost),
	}
}

type emission struct {
	AddressID    uint32
	ActivePeriod uint64
	Amount       []byte
	GridShare    []byte
	TokenShare   []byte
}

func (e *emission) compile(address [20]byte) Event {
	return &EmissionEvent{
		Address:      address,
		ActivePeriod: e.ActivePeriod,
		Amount:       amountString(e.Amount),
		GridShare:    amountString(e.GridShare),
		TokenShare:   amountString(e.TokenShare),
	}
}

func (e *emission) addressID() uint32 {
	return e.AddressID
}

// EmissionEvent is one epoch of option token emission.
type EmissionEvent struct {
	Address      types.Address `json:"address"`
	ActivePeriod uint64        `json:"active_period"`
	Amount       string        `json:"amount"`
	GridShare    string        `json:"grid_share"`
	TokenShare   string        `json:"token_share"`
}

func (e *EmissionEvent) Type() string {
	return TypeEmissionEvent
}

func (e *EmissionEvent) AddressString() string {
	return e.Address.String()
}

func (e *EmissionEvent) address() types.Address {
	return e.Address
}

func (e *EmissionEvent) convert(addressID uint32) compactEvent {
	return &emission{
		AddressID:    addressID,
		ActivePeriod: e.ActivePeriod,
		Amount:       amountBytes(e.Amount),
		GridShare:    amountBytes(e.GridShare),
		TokenShare:   amountBytes(e.TokenShare),
	}
}
