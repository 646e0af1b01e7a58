package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tilemint/tilemint-node/cmd/utils"
	"github.com/tilemint/tilemint-node/core/appdb"
	"github.com/tilemint/tilemint-node/core/state"
	"github.com/tilemint/tilemint-node/genesis"
)

var ExportCommand = &cobra.Command{
	Use:   "export",
	Short: "Export the state at a height as a genesis file",
	RunE:  export,
}

func init() {
	ExportCommand.Flags().Uint64("height", 0, "height to export (default is the last committed block)")
	ExportCommand.Flags().String("chain-id", "", "chain id of the new network")
	ExportCommand.Flags().String("genesis-time", "", "RFC3339 genesis time of the new network (default is now)")
	ExportCommand.Flags().String("output", "genesis.json", "output file")
	ExportCommand.Flags().Bool("indent", false, "indent the json")
	ExportCommand.Flags().Bool("compress", false, "zstd compress the output")
}

func export(cmd *cobra.Command, args []string) error {
	height, err := cmd.Flags().GetUint64("height")
	if err != nil {
		return err
	}
	chainID, err := cmd.Flags().GetString("chain-id")
	if err != nil {
		return err
	}
	if chainID == "" {
		return errors.New("chain-id is required")
	}
	genesisTime := time.Now()
	if timeFlag, _ := cmd.Flags().GetString("genesis-time"); timeFlag != "" {
		if genesisTime, err = time.Parse(time.RFC3339, timeFlag); err != nil {
			return errors.Wrap(err, "genesis-time")
		}
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	indent, err := cmd.Flags().GetBool("indent")
	if err != nil {
		return err
	}
	compress, err := cmd.Flags().GetBool("compress")
	if err != nil {
		return err
	}

	log.Println("Start exporting...")

	storages := utils.NewStorage(utils.GetTilemintHome())
	if err := storages.InitStateDB(cfg.DBBackend); err != nil {
		return errors.Wrap(err, "open state db")
	}
	defer storages.Close()

	db := appdb.NewAppDB(storages.GetTilemintHome(), cfg)
	defer db.Close()

	startHeight, lastHeight := db.StartHeight(), db.LastHeight()
	if height == 0 {
		height = lastHeight
	}
	if height <= startHeight || height > lastHeight {
		return errors.Errorf("height %d is not within %d..%d", height, startHeight+1, lastHeight)
	}

	currentState, err := state.NewCheckStateAtHeight(height-startHeight, storages.StateDB())
	if err != nil {
		return errors.Wrapf(err, "state at height %d, last available height %d", height, lastHeight)
	}

	exportTimeStart := time.Now()
	appState := currentState.Export()
	log.Printf("State has been exported. Took %s\n", time.Since(exportTimeStart))

	if err := appState.Verify(); err != nil {
		return errors.Wrap(err, "failed to validate")
	}
	log.Printf("Verify state OK\n")

	doc, err := genesis.NewGenesisDoc(chainID, appState, genesisTime, int64(height)+1)
	if err != nil {
		return err
	}

	var jsonBytes []byte
	if indent {
		jsonBytes, err = tmjson.MarshalIndent(doc, "", "  ")
	} else {
		jsonBytes, err = tmjson.Marshal(doc)
	}
	if err != nil {
		return errors.Wrap(err, "marshal genesis")
	}
	log.Printf("Marshal OK\n")

	if err := writeGenesis(output, jsonBytes, compress); err != nil {
		return err
	}

	fmt.Printf("Genesis at height %d written to %s\n", height, output)
	return nil
}

func writeGenesis(path string, data []byte, compress bool) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	var w io.WriteCloser = nopCloser{file}
	if compress {
		if w, err = zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedBetterCompression)); err != nil {
			return err
		}
	}

	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
