package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tilemint/tilemint-node/cmd/tilemint/cmd"
	"github.com/tilemint/tilemint-node/cmd/utils"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.PersistentFlags().StringVar(&utils.TilemintHome, "home-dir", "", "base dir (default is $HOME/.tilemint)")
	rootCmd.PersistentFlags().StringVar(&utils.TilemintConfig, "config", "", "path to config (default is $(home-dir)/config/config.toml)")

	rootCmd.AddCommand(
		cmd.RunNode,
		cmd.InitCommand,
		cmd.VerifyGenesis,
		cmd.ExportCommand,
		cmd.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		panic(err)
	}
}
