package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"
	"github.com/tilemint/tilemint-node/core/code"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/minter"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/statistics"
	"github.com/tilemint/tilemint-node/core/types"
)

var (
	owner = types.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = types.HexToAddress("0x04bea23efb744dc93b4fda4c20bf4a21c6e195f1")
	bob   = types.HexToAddress("0x18467bbb64a8edf890201d526c35957d82be3d95")
)

type fakeBlockchain struct {
	stateDB  db.DB
	state    *state.State
	events   eventsdb.IEventsDB
	height   uint64
	lastTime uint64
}

func (f *fakeBlockchain) GetStateForHeight(height uint64) (*state.CheckState, error) {
	if height == 0 {
		height = f.Height()
	}
	if height > f.Height() {
		return nil, errors.Errorf("state at height %d is not available", height)
	}
	return state.NewCheckStateAtHeight(height, f.stateDB)
}

func (f *fakeBlockchain) Height() uint64                  { return atomic.LoadUint64(&f.height) }
func (f *fakeBlockchain) LastBlockTime() uint64           { return atomic.LoadUint64(&f.lastTime) }
func (f *fakeBlockchain) GetEventsDB() eventsdb.IEventsDB { return f.events }
func (f *fakeBlockchain) StatisticData() *statistics.Data { return nil }

// commit closes the block at the next height.
func (f *fakeBlockchain) commit(t *testing.T) {
	t.Helper()

	require.NoError(t, f.state.Check())
	require.NoError(t, f.events.CommitEvents())
	_, err := f.state.Commit()
	require.NoError(t, err)

	height := atomic.AddUint64(&f.height, 1)
	atomic.AddUint64(&f.lastTime, 10)
	f.state.Bus().SetHeight(height + 1)
}

func genesis() types.AppState {
	return types.AppState{
		Owner: owner,
		Params: types.Params{
			FeeBps:            30,
			ReserveVirtual:    "1000",
			MaxSupply:         "1000",
			TileCost:          "10",
			GridWidth:         4,
			GridHeight:        4,
			EpochDuration:     100,
			InitialEmission:   "1000",
			TailEmission:      "100",
			DecayBps:          5000,
			GridShareBps:      4000,
			FeeRewardDuration: 10,
		},
		Accounts: []types.Account{
			{
				Address: alice,
				Balance: []types.Balance{
					{Asset: types.AssetBase, Value: "10000"},
					{Asset: types.AssetOption, Value: "500"},
				},
				Allowances: []types.Allowance{{Spender: types.GridAddress, Asset: types.AssetOption, Value: "500"}},
				Nonce:      3,
			},
			{
				Address: bob,
				Balance: []types.Balance{{Asset: types.AssetBase, Value: "2000"}},
			},
		},
		Coins: []types.Coin{
			{Asset: types.AssetBase, Symbol: "BASE", Volume: "12000"},
			{Asset: types.AssetOption, Symbol: "OTOKEN", Volume: "500"},
		},
		Token: types.Token{TotalSupply: "0", ReserveReal: "0", TotalStaked: "0"},
		Grids: types.Grids{
			NextID: 1,
			Colors: []string{"#000000", "#ffffff"},
			List:   []types.Grid{{ID: 0, Owner: owner}},
		},
		Emission: types.EmissionInfo{Weekly: "0"},
	}
}

// newTestService commits the genesis at height 1, then a mint by bob and
// two tiles placed by alice at height 2.
func newTestService(t *testing.T) (*Service, *fakeBlockchain) {
	t.Helper()

	stateDB := db.NewMemDB()
	events := eventsdb.NewEventsStore(db.NewMemDB())
	s, err := state.NewState(0, stateDB, events, 1024, 10)
	require.NoError(t, err)

	blockchain := &fakeBlockchain{stateDB: stateDB, state: s, events: events, lastTime: 1000}
	s.Bus().SetHeight(1)
	require.NoError(t, s.Import(genesis()))
	blockchain.commit(t)

	_, err = s.Token.Mint(bob, big.NewInt(1000), nil, bob)
	require.NoError(t, err)
	_, err = s.Grids.Place(0, alice, alice, []uint32{0, 1}, []uint32{0, 0}, 1, blockchain.lastTime)
	require.NoError(t, err)
	blockchain.commit(t)

	service := NewService(blockchain, nil, Options{Version: "test", Moniker: "node", Network: "tilemint-test"})
	return service, blockchain
}

func get(t *testing.T, handler http.Handler, path string, result interface{}) int {
	t.Helper()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	if result != nil {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), result), recorder.Body.String())
	}
	return recorder.Code
}

type errorResponse struct {
	Error struct {
		Code    uint32 `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestService_Status(t *testing.T) {
	service, _ := newTestService(t)

	var status StatusResponse
	require.Equal(t, http.StatusOK, get(t, service.Handler(), "/status", &status))
	require.Equal(t, "test", status.Version)
	require.Equal(t, "tilemint-test", status.Network)
	require.Equal(t, uint64(2), status.LatestBlockHeight)
	require.Equal(t, uint64(1020), status.LatestBlockTime)
}

func TestService_TokenRoutes(t *testing.T) {
	service, _ := newTestService(t)
	handler := service.Handler()

	var price minter.PriceResult
	require.Equal(t, http.StatusOK, get(t, handler, "/price", &price))
	require.Equal(t, "997", price.ReserveReal)

	var genesisPrice minter.PriceResult
	require.Equal(t, http.StatusOK, get(t, handler, "/price?height=1", &genesisPrice))
	require.Equal(t, "0", genesisPrice.ReserveReal)
	require.Equal(t, "0", genesisPrice.TotalSupply)

	var missing errorResponse
	require.Equal(t, http.StatusNotFound, get(t, handler, "/price?height=9", &missing))
	require.Equal(t, code.DecodeError, missing.Error.Code)

	var balances map[string]string
	require.Equal(t, http.StatusOK, get(t, handler, "/balance/"+bob.String(), &balances))
	require.Equal(t, "1000", balances["BASE"])
	require.Equal(t, price.TotalSupply, balances["TOKEN"])

	var quote QuoteResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/estimate_mint?value=1000", &quote))
	require.Equal(t, "1000", quote.In)
	require.Equal(t, "3", quote.Fee)

	var badValue errorResponse
	require.Equal(t, http.StatusBadRequest, get(t, handler, "/estimate_burn?value=-1", &badValue))
	require.Equal(t, code.DecodeError, badValue.Error.Code)

	var nonce map[string]uint64
	require.Equal(t, http.StatusOK, get(t, handler, "/nonce/"+alice.String(), &nonce))
	require.Equal(t, uint64(3), nonce["nonce"])

	var stake StakeResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/stake/"+bob.String(), &stake))
	require.Equal(t, "0", stake.Staked)

	var badAddress errorResponse
	require.Equal(t, http.StatusBadRequest, get(t, handler, "/balance/0x12", &badAddress))
	require.Equal(t, code.DecodeError, badAddress.Error.Code)
}

func TestService_RewardRoutes(t *testing.T) {
	service, _ := newTestService(t)
	handler := service.Handler()

	var rewards minter.RewardsResult
	require.Equal(t, http.StatusOK, get(t, handler, "/rewards/grid/"+alice.String(), &rewards))
	require.Equal(t, "grid", rewards.Rewarder)
	require.Equal(t, "2", rewards.Weight)
	require.Contains(t, rewards.Earned, "OTOKEN")

	var unknown errorResponse
	require.Equal(t, http.StatusBadRequest, get(t, handler, "/rewards/nope/"+alice.String(), &unknown))
	require.Equal(t, code.UnknownRewarder, unknown.Error.Code)

	var fees map[string]FeeResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/fees", &fees))
	require.Equal(t, "20", fees["OTOKEN"].Received)

	var emission MinterResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/minter", &emission))
	require.False(t, emission.Initialized)
}

func TestService_GridRoutes(t *testing.T) {
	service, _ := newTestService(t)
	handler := service.Handler()

	var palette map[string][]string
	require.Equal(t, http.StatusOK, get(t, handler, "/palette", &palette))
	require.Equal(t, []string{"#000000", "#ffffff"}, palette["colors"])

	var grids GridsResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/grids", &grids))
	require.Equal(t, GridsResponse{Count: 1, Width: 4, Height: 4, TotalPlaced: 2}, grids)

	var missing errorResponse
	require.Equal(t, http.StatusNotFound, get(t, handler, "/grid/3", &missing))
	require.Equal(t, code.GridNotFound, missing.Error.Code)

	var tiles []TileResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/grid/0/tiles", &tiles))
	require.Len(t, tiles, 2)
	require.Equal(t, uint32(0), tiles[0].X)
	require.Equal(t, uint32(1), tiles[1].X)
	require.Equal(t, "#ffffff", tiles[1].Color)
	require.Equal(t, alice, *tiles[1].Owner)

	var unclaimed TileResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/grid/0/tile/3/3", &unclaimed))
	require.False(t, unclaimed.Claimed)
	require.Nil(t, unclaimed.Owner)

	var placements PlacementsResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/placements/"+alice.String(), &placements))
	require.Equal(t, "2", placements.Weight)
	require.Equal(t, []PlacementResponse{{Grid: 0, Placed: 2, Owned: 2}}, placements.Grids)
}

func TestService_Events(t *testing.T) {
	service, _ := newTestService(t)
	handler := service.Handler()

	var block struct {
		Height uint64 `json:"height"`
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	require.Equal(t, http.StatusOK, get(t, handler, "/events?height=2", &block))
	require.Equal(t, uint64(2), block.Height)
	require.Len(t, block.Events, 2)
	require.Equal(t, eventsdb.TypeTokenMintEvent, block.Events[0].Type)
	require.Equal(t, eventsdb.TypeTilePlaceEvent, block.Events[1].Type)

	require.Equal(t, http.StatusNotFound, get(t, handler, "/events?height=3", nil))
}

func TestService_Subscribe(t *testing.T) {
	stateDB := db.NewMemDB()
	events := eventsdb.NewEventsStore(db.NewMemDB())
	s, err := state.NewState(0, stateDB, events, 1024, 10)
	require.NoError(t, err)
	require.NoError(t, s.Import(genesis()))

	blockchain := &fakeBlockchain{stateDB: stateDB, state: s, events: events, lastTime: 1000}
	s.Bus().SetHeight(1)
	blockchain.commit(t)

	service := NewService(blockchain, nil, Options{SubscriptionPollTimeout: 10 * time.Millisecond})
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/events/subscribe", nil)
	require.NoError(t, err)
	defer conn.Close()

	// subscriptions only see blocks committed after they opened
	time.Sleep(50 * time.Millisecond)
	_, err = s.Token.Mint(bob, big.NewInt(1000), nil, bob)
	require.NoError(t, err)
	blockchain.commit(t)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var block struct {
		Height uint64 `json:"height"`
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	require.NoError(t, conn.ReadJSON(&block))
	require.Equal(t, uint64(2), block.Height)
	require.Len(t, block.Events, 1)
	require.Equal(t, eventsdb.TypeTokenMintEvent, block.Events[0].Type)
}

func TestService_IdleSubscribersDoNotHoldRequestSlots(t *testing.T) {
	_, blockchain := newTestService(t)

	service := NewService(blockchain, nil, Options{
		SimultaneousRequests:    1,
		MaxSubscribers:          2,
		SubscriptionPollTimeout: 10 * time.Millisecond,
	})
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events/subscribe"
	for i := 0; i < 2; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()
	}

	for i := 0; i < 3; i++ {
		resp, err := http.Get(server.URL + "/status")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestService_MarketRoutes(t *testing.T) {
	service, _ := newTestService(t)
	handler := service.Handler()

	// floor 1000/1000, spot 1997/501 after bob's mint
	var market minter.MarketResult
	require.Equal(t, http.StatusOK, get(t, handler, "/market", &market))
	require.Equal(t, "2986027944111776447", market.PriceOTOKEN)
	require.Equal(t, "25087631447170756134", market.LTV)
	require.Equal(t, "997", market.TVL)
	require.Equal(t, "0", market.APR)
	require.Equal(t, "499", market.Circulating)
	require.Equal(t, "0", market.TotalDebt)

	var loan minter.LoanResult
	require.Equal(t, http.StatusOK, get(t, handler, "/loan/"+bob.String(), &loan))
	require.Equal(t, minter.LoanResult{Staked: "0", Debt: "0", BorrowCredit: "0", MaxWithdraw: "0"}, loan)

	var quote QuoteResponse
	require.Equal(t, http.StatusOK, get(t, handler, "/estimate_exercise?value=10", &quote))
	require.Equal(t, "10", quote.In)
	require.Equal(t, "10", quote.Out)

	var badAddress errorResponse
	require.Equal(t, http.StatusBadRequest, get(t, handler, "/loan/0x12", &badAddress))
	require.Equal(t, code.DecodeError, badAddress.Error.Code)
}
