package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	tmlog "github.com/tendermint/tendermint/libs/log"
	tmnet "github.com/tendermint/tendermint/libs/net"
	"github.com/tilemint/tilemint-node/core/code"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/core/statistics"
	"golang.org/x/sync/semaphore"
)

// Blockchain is the part of the node the API reads from.
type Blockchain interface {
	GetStateForHeight(height uint64) (*state.CheckState, error)
	Height() uint64
	LastBlockTime() uint64
	GetEventsDB() eventsdb.IEventsDB
	StatisticData() *statistics.Data
}

// Service serves the read-only HTTP API of a node.
type Service struct {
	blockchain Blockchain
	logger     tmlog.Logger
	version    string
	moniker    string
	network    string

	requests    *semaphore.Weighted
	subscribers *semaphore.Weighted
	upgrader    websocket.Upgrader

	// how often subscriptions look for a new block
	pollInterval time.Duration
}

type Options struct {
	Version                 string
	Moniker                 string
	Network                 string
	SimultaneousRequests    int
	MaxSubscribers          int
	SubscriptionPollTimeout time.Duration
}

func NewService(blockchain Blockchain, logger tmlog.Logger, opts Options) *Service {
	if logger == nil {
		logger = tmlog.NewNopLogger()
	}
	if opts.SimultaneousRequests <= 0 {
		opts.SimultaneousRequests = 100
	}
	if opts.MaxSubscribers <= 0 {
		opts.MaxSubscribers = 100
	}
	if opts.SubscriptionPollTimeout <= 0 {
		opts.SubscriptionPollTimeout = 500 * time.Millisecond
	}

	return &Service{
		blockchain:   blockchain,
		logger:       logger.With("module", "api"),
		version:      opts.Version,
		moniker:      opts.Moniker,
		network:      opts.Network,
		requests:     semaphore.NewWeighted(int64(opts.SimultaneousRequests)),
		subscribers:  semaphore.NewWeighted(int64(opts.MaxSubscribers)),
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		pollInterval: opts.SubscriptionPollTimeout,
	}
}

// Handler returns the API routes behind CORS and gzip. Websocket upgrades
// bypass compression and hold a subscriber slot instead of a request slot.
func (s *Service) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/events/subscribe", s.limitSubscribers, s.subscribe)

	api := r.Group("/", s.limit, s.measure)
	api.GET("/status", s.status)
	api.GET("/price", s.price)
	api.GET("/market", s.market)
	api.GET("/estimate_mint", s.estimateMint)
	api.GET("/estimate_burn", s.estimateBurn)
	api.GET("/estimate_exercise", s.estimateExercise)
	api.GET("/balance/:address", s.balance)
	api.GET("/nonce/:address", s.nonce)
	api.GET("/stake/:address", s.stake)
	api.GET("/loan/:address", s.loan)
	api.GET("/rewards/:rewarder/:address", s.rewards)
	api.GET("/fees", s.fees)
	api.GET("/minter", s.minter)
	api.GET("/palette", s.palette)
	api.GET("/grids", s.grids)
	api.GET("/grid/:id", s.grid)
	api.GET("/grid/:id/tiles", s.tiles)
	api.GET("/grid/:id/tile/:x/:y", s.tile)
	api.GET("/placements/:address", s.placements)
	api.GET("/events", s.events)

	compressed := handlers.CompressHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet},
		AllowCredentials: true,
	}).Handler(r))

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if websocket.IsWebSocketUpgrade(req) {
			r.ServeHTTP(w, req)
			return
		}
		compressed.ServeHTTP(w, req)
	})
}

// Run serves the API on listenAddr until ctx is done.
func (s *Service) Run(ctx context.Context, listenAddr string) error {
	proto, addr := tmnet.ProtocolAndAddress(listenAddr)
	listener, err := net.Listen(proto, addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", listenAddr)
	}

	server := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("api shutdown", "err", err)
		}
	}()

	s.logger.Info("api listening", "addr", listenAddr)
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Service) limit(c *gin.Context) {
	if !s.requests.TryAcquire(1) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(http.StatusTooManyRequests, "too many requests"))
		return
	}
	defer s.requests.Release(1)

	c.Next()
}

func (s *Service) limitSubscribers(c *gin.Context) {
	if !s.subscribers.TryAcquire(1) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(http.StatusTooManyRequests, "too many subscribers"))
		return
	}
	defer s.subscribers.Release(1)

	c.Next()
}

func (s *Service) measure(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.blockchain.StatisticData().SetApiTime(time.Since(start), c.FullPath())
}

// stateForRequest returns the state at the "height" query parameter, the
// current state when it is absent.
func (s *Service) stateForRequest(c *gin.Context) (*state.CheckState, bool) {
	height, err := strconv.ParseUint(c.DefaultQuery("height", "0"), 10, 64)
	if err != nil {
		badRequest(c, errors.Wrap(code.ErrDecode, "height"))
		return nil, false
	}

	cState, err := s.blockchain.GetStateForHeight(height)
	if err != nil {
		c.JSON(http.StatusNotFound, errorBody(code.DecodeError, err.Error()))
		return nil, false
	}
	return cState, true
}

func errorBody(c uint32, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    c,
			"message": message,
		},
	}
}

// badRequest answers err with its response code.
func badRequest(c *gin.Context, err error) {
	errCode, kind := code.Of(err)

	status := http.StatusBadRequest
	switch {
	case errCode == code.GridNotFound:
		status = http.StatusNotFound
	case kind == code.KindInvariant:
		status = http.StatusInternalServerError
	}

	c.JSON(status, errorBody(errCode, err.Error()))
}
