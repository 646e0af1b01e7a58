package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	abciserver "github.com/tendermint/tendermint/abci/server"
	tmlog "github.com/tendermint/tendermint/libs/log"
	"github.com/tilemint/tilemint-node/api"
	"github.com/tilemint/tilemint-node/cmd/utils"
	"github.com/tilemint/tilemint-node/core/minter"
	"github.com/tilemint/tilemint-node/core/statistics"
	"github.com/tilemint/tilemint-node/log"
	"github.com/tilemint/tilemint-node/version"
	"golang.org/x/sync/errgroup"
)

var errHalted = errors.New("node halted")

// RunNode is the command that allows the CLI to start a node.
var RunNode = &cobra.Command{
	Use:   "node",
	Short: "Run the tilemint node",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runNode(cmd)
	},
}

func runNode(cmd *cobra.Command) error {
	logger, err := log.NewLogger(cfg)
	if err != nil {
		return err
	}

	storages := utils.NewStorage(utils.GetTilemintHome())
	if err := storages.InitStateDB(cfg.DBBackend); err != nil {
		return errors.Wrap(err, "open state db")
	}
	if err := storages.InitEventDB(cfg.DBBackend); err != nil {
		return errors.Wrap(err, "open events db")
	}

	app := minter.NewTilemintBlockchain(storages, cfg, logger)
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("close databases", "err", err)
		}
	}()

	if cfg.Metrics.Prometheus {
		app.SetStatisticData(statistics.New(statistics.PrometheusMetrics(cfg.Metrics.Namespace)))
	}

	server, err := abciserver.NewServer(cfg.ABCIListenAddress, cfg.ABCI, app)
	if err != nil {
		return errors.Wrap(err, "abci server")
	}
	server.SetLogger(logger.With("module", "abci-server"))
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("abci server started", "addr", cfg.ABCIListenAddress, "height", app.Height())

	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		<-ctx.Done()
		return server.Stop()
	})

	g.Go(func() error {
		service := api.NewService(app, logger, api.Options{
			Version:                 version.Version,
			Moniker:                 cfg.Moniker,
			Network:                 cfg.Network,
			SimultaneousRequests:    cfg.API.SimultaneousRequests,
			MaxSubscribers:          cfg.API.MaxSubscribers,
			SubscriptionPollTimeout: cfg.API.SubscriptionPollInterval,
		})
		return service.Run(ctx, cfg.API.ListenAddress)
	})

	if cfg.Metrics.Prometheus {
		g.Go(func() error {
			return runMetrics(ctx, cfg.Metrics.ListenAddress, logger)
		})
	}

	g.Go(func() error {
		select {
		case <-app.Halted():
			return errHalted
		case <-ctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errHalted) {
		return err
	}

	logger.Info("node stopped", "height", app.Height())
	return nil
}

func runMetrics(ctx context.Context, addr string, logger tmlog.Logger) error {
	server := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown", "err", err)
		}
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
