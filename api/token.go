package api

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	"github.com/tilemint/tilemint-node/core/minter"
	"github.com/tilemint/tilemint-node/core/state/token"
	"github.com/tilemint/tilemint-node/core/types"
)

// StatusResponse describes the node and its latest block.
type StatusResponse struct {
	Version           string  `json:"version"`
	Moniker           string  `json:"moniker"`
	Network           string  `json:"network"`
	LatestBlockHeight uint64  `json:"latest_block_height"`
	LatestBlockTime   uint64  `json:"latest_block_time"`
	BlockDuration     float64 `json:"block_duration"`
}

// QuoteResponse is the outcome of a mint or burn estimate. Floor is the
// BASE a burn takes from the floor reserve.
type QuoteResponse struct {
	In      string `json:"in"`
	Out     string `json:"out"`
	Fee     string `json:"fee"`
	Reserve string `json:"reserve"`
	Floor   string `json:"floor"`
}

type StakeResponse struct {
	Staked      string `json:"staked"`
	TotalStaked string `json:"total_staked"`
}

type FeeResponse struct {
	Accrued     string `json:"accrued"`
	Received    string `json:"received"`
	Distributed string `json:"distributed"`
}

type MinterResponse struct {
	Initialized  bool   `json:"initialized"`
	ActivePeriod uint64 `json:"active_period"`
	NextPeriod   uint64 `json:"next_period"`
	EpochCount   uint64 `json:"epoch_count"`
	Weekly       string `json:"weekly"`
}

func (s *Service) status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Version:           s.version,
		Moniker:           s.moniker,
		Network:           s.network,
		LatestBlockHeight: s.blockchain.Height(),
		LatestBlockTime:   s.blockchain.LastBlockTime(),
		BlockDuration:     s.blockchain.StatisticData().GetLastBlockInfo().Duration,
	})
}

func (s *Service) price(c *gin.Context) {
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	result, err := minter.Price(cState)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) market(c *gin.Context) {
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	result, err := minter.Market(cState, s.blockchain.LastBlockTime())
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) estimateMint(c *gin.Context) {
	s.estimate(c, func(t token.RToken, value *big.Int) (*token.Quote, error) {
		return t.QuoteMint(value)
	})
}

func (s *Service) estimateExercise(c *gin.Context) {
	s.estimate(c, func(t token.RToken, value *big.Int) (*token.Quote, error) {
		base, err := t.QuoteExercise(value)
		if err != nil {
			return nil, err
		}
		return &token.Quote{In: base, Out: value, Fee: big.NewInt(0), Reserve: big.NewInt(0), Floor: base}, nil
	})
}

func (s *Service) estimateBurn(c *gin.Context) {
	s.estimate(c, func(t token.RToken, value *big.Int) (*token.Quote, error) {
		return t.QuoteBurn(value)
	})
}

func (s *Service) estimate(c *gin.Context, quote func(token.RToken, *big.Int) (*token.Quote, error)) {
	value, err := bigValue(c.Query("value"))
	if err != nil {
		badRequest(c, err)
		return
	}

	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	q, err := quote(cState.Token(), value)
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, QuoteResponse{
		In:      q.In.String(),
		Out:     q.Out.String(),
		Fee:     q.Fee.String(),
		Reserve: q.Reserve.String(),
		Floor:   q.Floor.String(),
	})
}

func (s *Service) balance(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, minter.Balance(cState, address))
}

func (s *Service) nonce(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": cState.Accounts().GetNonce(address)})
}

func (s *Service) stake(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, StakeResponse{
		Staked:      cState.Token().Staked(address).String(),
		TotalStaked: cState.Token().TotalStaked().String(),
	})
}

func (s *Service) loan(c *gin.Context) {
	address, ok := addressParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	result, err := minter.Loan(cState, address)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) rewards(c *gin.Context) {
	id, known := types.RewarderByName(c.Param("rewarder"))
	if !known {
		badRequest(c, errors.Wrapf(code.ErrUnknownRewarder, "rewarder %q", c.Param("rewarder")))
		return
	}
	address, ok := addressParam(c)
	if !ok {
		return
	}
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	result, err := minter.Rewards(cState, id, address, s.blockchain.LastBlockTime())
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) fees(c *gin.Context) {
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	result := make(map[string]FeeResponse, len(types.Assets()))
	for _, asset := range types.Assets() {
		model := cState.Fees().GetModel(asset)
		result[asset.Symbol()] = FeeResponse{
			Accrued:     model.Accrued.String(),
			Received:    model.Received.String(),
			Distributed: model.Distributed.String(),
		}
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) minter(c *gin.Context) {
	cState, ok := s.stateForRequest(c)
	if !ok {
		return
	}

	emission := cState.Emission()
	c.JSON(http.StatusOK, MinterResponse{
		Initialized:  emission.Initialized(),
		ActivePeriod: emission.ActivePeriod(),
		NextPeriod:   emission.NextPeriod(),
		EpochCount:   emission.EpochCount(),
		Weekly:       emission.Weekly().String(),
	})
}

func addressParam(c *gin.Context) (types.Address, bool) {
	s := c.Param("address")
	if !types.IsHexAddress(s) {
		badRequest(c, errors.Wrapf(code.ErrDecode, "invalid address %q", s))
		return types.Address{}, false
	}
	return types.HexToAddress(s), true
}

func bigValue(s string) (*big.Int, error) {
	value, ok := big.NewInt(0).SetString(s, 10)
	if !ok || value.Sign() < 0 {
		return nil, errors.Wrapf(code.ErrDecode, "invalid value %q", s)
	}
	return value, nil
}
