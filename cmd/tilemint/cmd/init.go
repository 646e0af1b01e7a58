package cmd

import (
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tilemint/tilemint-node/core/types"
	"github.com/tilemint/tilemint-node/genesis"
	"github.com/tilemint/tilemint-node/helpers"
)

var InitCommand = &cobra.Command{
	Use:   "init",
	Short: "Write the genesis file of a new network",
	RunE:  initGenesis,
}

func init() {
	InitCommand.Flags().String("owner", "", "address of the network owner")
	InitCommand.Flags().String("chain-id", "tilemint-testnet", "chain id of the network")
	InitCommand.Flags().String("base-supply", "1000000000", "BASE supply held by the owner, in whole units")
	InitCommand.Flags().Bool("force", false, "overwrite an existing genesis file")
}

func initGenesis(cmd *cobra.Command, args []string) error {
	ownerHex, err := cmd.Flags().GetString("owner")
	if err != nil {
		return err
	}
	if !types.IsHexAddress(ownerHex) {
		return errors.Errorf("invalid owner address %q", ownerHex)
	}

	chainID, err := cmd.Flags().GetString("chain-id")
	if err != nil {
		return err
	}

	supplyFlag, err := cmd.Flags().GetString("base-supply")
	if err != nil {
		return err
	}
	supply, ok := big.NewInt(0).SetString(supplyFlag, 10)
	if !ok || supply.Sign() <= 0 {
		return errors.Errorf("invalid base supply %q", supplyFlag)
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	path := cfg.GenesisFile()
	if tmos.FileExists(path) && !force {
		return errors.Errorf("genesis file %s already exists", path)
	}

	doc, err := genesis.NewGenesisDoc(chainID, genesis.Default(types.HexToAddress(ownerHex), helpers.ToWei(supply)), time.Now(), 1)
	if err != nil {
		return err
	}
	if err := doc.SaveAs(path); err != nil {
		return err
	}

	fmt.Printf("Genesis written to %s\n", path)
	return nil
}
