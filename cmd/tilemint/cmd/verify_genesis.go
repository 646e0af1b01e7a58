package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tilemint/tilemint-node/genesis"
)

var VerifyGenesis = &cobra.Command{
	Use:   "verify-genesis",
	Short: "Verify genesis file",
	RunE:  verifyGenesis,
}

func init() {
	VerifyGenesis.Flags().String("genesis", "", "genesis file (default is the genesis_file of the config)")
}

func verifyGenesis(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("genesis")
	if err != nil {
		return err
	}
	if path == "" {
		path = cfg.GenesisFile()
	}

	doc, appState, err := genesis.AppStateFromFile(path)
	if err != nil {
		return err
	}

	fmt.Printf("Genesis is ok: chain %s, owner %s, %d accounts, %d grids\n",
		doc.ChainID, appState.Owner, len(appState.Accounts), appState.Grids.NextID)

	return nil
}
