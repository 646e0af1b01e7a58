package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tilemint/tilemint-node/cmd/utils"
	"github.com/tilemint/tilemint-node/config"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/version"
)

var cfg *config.Config

var RootCmd = &cobra.Command{
	Use:   "tilemint",
	Short: "Tilemint Go Node",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		v.SetConfigFile(utils.GetTilemintConfigPath())
		cfg = config.GetConfig()

		if err := v.ReadInConfig(); err != nil {
			return errors.Wrap(err, "read config")
		}

		if err := v.Unmarshal(cfg); err != nil {
			return errors.Wrap(err, "parse config")
		}
		cfg.SetRoot(utils.GetTilemintHome())

		if cfg.KeepLastStates < 1 {
			return errors.New("keep_last_states field should be greater than 0")
		}

		switch cfg.Network {
		case "mainnet":
			types.CurrentChainID = types.ChainMainnet
		case "testnet":
			types.CurrentChainID = types.ChainTestnet
			version.Version += "-testnet"
		default:
			return errors.Errorf("unknown network %q", cfg.Network)
		}

		return nil
	},
}
