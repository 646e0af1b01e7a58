package minter

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	abciTypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/state/rewarder"
	"github.com/tilemint/tilemint-node/core/types"
)

// PriceResult is the curve snapshot answered by /price
type PriceResult struct {
	SpotPrice   string `json:"spot_price"`
	FloorPrice  string `json:"floor_price"`
	MarketCap   string `json:"market_cap"`
	TotalSupply string `json:"total_supply"`
	ReserveReal string `json:"reserve_real"`
	TotalStaked string `json:"total_staked"`
}

// RewardsResult is the position of an account in a rewarder
type RewardsResult struct {
	Rewarder    string            `json:"rewarder"`
	Weight      string            `json:"weight"`
	TotalWeight string            `json:"total_weight"`
	Earned      map[string]string `json:"earned"`
}

func Price(cs *state.CheckState) (*PriceResult, error) {
	token := cs.Token()

	spot, err := token.SpotPrice()
	if err != nil {
		return nil, err
	}
	floor, err := token.FloorPrice()
	if err != nil {
		return nil, err
	}
	marketCap, err := token.MarketCap()
	if err != nil {
		return nil, err
	}

	return &PriceResult{
		SpotPrice:   spot.String(),
		FloorPrice:  floor.String(),
		MarketCap:   marketCap.String(),
		TotalSupply: token.TotalSupply().String(),
		ReserveReal: token.ReserveReal().String(),
		TotalStaked: token.TotalStaked().String(),
	}, nil
}

// MarketResult is the lending and option view of the curve. Percentages
// carry 18 decimals, values are in BASE.
type MarketResult struct {
	PriceOTOKEN  string `json:"price_otoken"`
	TVL          string `json:"tvl"`
	APR          string `json:"apr"`
	LTV          string `json:"ltv"`
	Circulating  string `json:"circulating"`
	Exercised    string `json:"exercised"`
	FloorReserve string `json:"floor_reserve"`
	TotalDebt    string `json:"total_debt"`
}

// LoanResult is what address has staked, owes and may still borrow or
// withdraw.
type LoanResult struct {
	Staked       string `json:"staked"`
	Debt         string `json:"debt"`
	BorrowCredit string `json:"borrow_credit"`
	MaxWithdraw  string `json:"max_withdraw"`
}

// Market values the curve at now, the time the staking APR is taken at.
func Market(cs *state.CheckState, now uint64) (*MarketResult, error) {
	token := cs.Token()

	option, err := token.PriceOTOKEN()
	if err != nil {
		return nil, err
	}
	tvl, err := token.TVL()
	if err != nil {
		return nil, err
	}
	apr, err := token.APR(now)
	if err != nil {
		return nil, err
	}
	ltv, err := token.LTV()
	if err != nil {
		return nil, err
	}

	return &MarketResult{
		PriceOTOKEN:  option.String(),
		TVL:          tvl.String(),
		APR:          apr.String(),
		LTV:          ltv.String(),
		Circulating:  token.Circulating().String(),
		Exercised:    token.Exercised().String(),
		FloorReserve: token.FloorReserve().String(),
		TotalDebt:    token.TotalDebt().String(),
	}, nil
}

func Loan(cs *state.CheckState, address types.Address) (*LoanResult, error) {
	token := cs.Token()

	credit, err := token.BorrowCredit(address)
	if err != nil {
		return nil, err
	}
	withdraw, err := token.MaxWithdraw(address)
	if err != nil {
		return nil, err
	}

	return &LoanResult{
		Staked:       token.Staked(address).String(),
		Debt:         token.Debt(address).String(),
		BorrowCredit: credit.String(),
		MaxWithdraw:  withdraw.String(),
	}, nil
}

// Balance returns the balances of address keyed by asset symbol
func Balance(cs *state.CheckState, address types.Address) map[string]string {
	result := make(map[string]string, len(types.Assets()))
	for _, asset := range types.Assets() {
		result[asset.Symbol()] = cs.Accounts().GetBalance(address, asset).String()
	}
	return result
}

// Rewards returns the weight and the pending rewards of address in id at now
func Rewards(cs *state.CheckState, id types.RewarderID, address types.Address, now uint64) (*RewardsResult, error) {
	rewarders := cs.Rewarders()

	result := &RewardsResult{
		Rewarder:    id.String(),
		Weight:      rewarders.GetWeight(id, address).String(),
		TotalWeight: rewarders.GetTotalWeight(id).String(),
		Earned:      map[string]string{},
	}
	for _, asset := range rewarder.RewardAssets(id) {
		earned, err := rewarders.Earned(id, address, asset, now)
		if err != nil {
			return nil, err
		}
		result.Earned[asset.Symbol()] = earned.String()
	}

	return result, nil
}

// Query answers /price, /market, /balance/<address>, /loan/<address>,
// /grid/<id> and /rewards/<rewarder>/<address> against the state at
// req.Height.
func (blockchain *Blockchain) Query(req abciTypes.RequestQuery) abciTypes.ResponseQuery {
	cs, err := blockchain.GetStateForHeight(uint64(req.Height))
	if err != nil {
		return queryError(code.DecodeError, err)
	}

	value, err := blockchain.query(cs, strings.Split(strings.Trim(req.Path, "/"), "/"))
	if err != nil {
		c, _ := code.Of(err)
		return queryError(c, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return queryError(code.InvariantViolation, err)
	}

	return abciTypes.ResponseQuery{
		Code:   code.OK,
		Key:    []byte(req.Path),
		Value:  data,
		Height: cs.Height() + int64(blockchain.appDB.StartHeight()),
	}
}

func (blockchain *Blockchain) query(cs *state.CheckState, path []string) (interface{}, error) {
	switch {
	case len(path) == 1 && path[0] == "price":
		return Price(cs)
	case len(path) == 1 && path[0] == "market":
		return Market(cs, blockchain.LastBlockTime())
	case len(path) == 2 && path[0] == "loan":
		address, err := parseAddress(path[1])
		if err != nil {
			return nil, err
		}
		return Loan(cs, address)
	case len(path) == 2 && path[0] == "balance":
		address, err := parseAddress(path[1])
		if err != nil {
			return nil, err
		}
		return Balance(cs, address), nil
	case len(path) == 2 && path[0] == "grid":
		id, err := strconv.ParseUint(path[1], 10, 32)
		if err != nil {
			return nil, errors.Wrap(code.ErrDecode, err.Error())
		}
		return cs.Grids().GetGrid(types.GridID(id))
	case len(path) == 3 && path[0] == "rewards":
		id, ok := types.RewarderByName(path[1])
		if !ok {
			return nil, errors.Wrapf(code.ErrUnknownRewarder, "rewarder %q", path[1])
		}
		address, err := parseAddress(path[2])
		if err != nil {
			return nil, err
		}
		return Rewards(cs, id, address, blockchain.LastBlockTime())
	}

	return nil, errors.Wrapf(code.ErrDecode, "unknown query path %q", strings.Join(path, "/"))
}

func parseAddress(s string) (types.Address, error) {
	if !types.IsHexAddress(s) {
		return types.Address{}, errors.Wrapf(code.ErrDecode, "invalid address %q", s)
	}
	return types.HexToAddress(s), nil
}

func queryError(c uint32, err error) abciTypes.ResponseQuery {
	return abciTypes.ResponseQuery{
		Code: c,
		Log:  err.Error(),
		Info: code.Info(err),
	}
}
