package log

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tilemint/tilemint-node/config"
)

// NewLogger builds the node logger from cfg: plain or JSON output to stdout or
// log_path, filtered by the per-module levels of log_level.
func NewLogger(cfg *config.Config) (log.Logger, error) {
	var dest io.Writer = os.Stdout

	if cfg.LogPath != "" && cfg.LogPath != "stdout" {
		file, err := os.OpenFile(cfg.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, errors.Wrap(err, "open log file")
		}

		dest = file
	}

	var l log.Logger

	switch cfg.LogFormat {
	case config.LogFormatJSON:
		l = log.NewTMJSONLogger(log.NewSyncWriter(dest))
	case config.LogFormatPlain:
		l = log.NewTMLogger(log.NewSyncWriter(dest))
	default:
		return nil, errors.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	l, err := flags.ParseLogLevel(cfg.LogLevel, l, config.DefaultLogLevel())
	if err != nil {
		return nil, err
	}

	return l, nil
}
