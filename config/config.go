package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/tilemint/tilemint-node/cmd/utils"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	configDir = "config"
	dataDir   = "data"
)

var (
	configFile  = filepath.Join(configDir, "config.toml")
	genesisFile = filepath.Join(configDir, "genesis.json")
)

// Config is the configuration of a tilemint node: the node itself, its
// read-only API and its metrics endpoint.
type Config struct {
	BaseConfig `mapstructure:",squash"`

	API     APIConfig     `mapstructure:"api"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// BaseConfig is the part of the configuration the ABCI application and its
// state storage read.
type BaseConfig struct {
	// Node home; set by the CLI, not read from the file
	RootDir string `mapstructure:"home"`

	Genesis string `mapstructure:"genesis_file"`
	Moniker string `mapstructure:"moniker"`

	// mainnet | testnet
	Network string `mapstructure:"network"`

	ABCIListenAddress string `mapstructure:"abci_listen_addr"`
	// socket | grpc
	ABCI string `mapstructure:"abci"`

	// Per module levels, "state:info,*:error"
	LogLevel string `mapstructure:"log_level"`
	// plain | json
	LogFormat string `mapstructure:"log_format"`
	// File to append logs to, "stdout" otherwise
	LogPath string `mapstructure:"log_path"`

	// goleveldb | memdb
	DBBackend string `mapstructure:"db_backend"`
	DBPath    string `mapstructure:"db_dir"`

	// Committed state versions kept on disk; historical API reads reach
	// this far back
	KeepLastStates int64 `mapstructure:"keep_last_states"`
	StateCacheSize int   `mapstructure:"state_cache_size"`

	// Stop after committing this height, 0 disables
	HaltHeight uint64 `mapstructure:"halt_height"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	ListenAddress string `mapstructure:"listen_addr"`

	// Requests served at once; websocket subscribers are counted apart
	SimultaneousRequests int `mapstructure:"simultaneous_requests"`
	MaxSubscribers       int `mapstructure:"max_subscribers"`

	// How often subscribers look for a newly committed block
	SubscriptionPollInterval time.Duration `mapstructure:"subscription_poll_interval"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Prometheus    bool   `mapstructure:"prometheus"`
	ListenAddress string `mapstructure:"listen_addr"`
	Namespace     string `mapstructure:"namespace"`
}

// DefaultConfig returns a default configuration for a tilemint node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		API: APIConfig{
			ListenAddress:            "tcp://0.0.0.0:8841",
			SimultaneousRequests:     100,
			MaxSubscribers:           100,
			SubscriptionPollInterval: 500 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			ListenAddress: ":26660",
			Namespace:     "tilemint",
		},
	}
}

// GetConfig returns the default configuration rooted at the node home, creating
// the home directories and a default config file when missing.
func GetConfig() *Config {
	cfg := DefaultConfig()

	cfg.SetRoot(utils.GetTilemintHome())
	EnsureRoot(utils.GetTilemintHome())

	return cfg
}

// SetRoot roots every relative path of cfg at root.
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// DefaultBaseConfig returns a default base configuration for a tilemint node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Genesis:           genesisFile,
		Moniker:           defaultMoniker(),
		Network:           "testnet",
		ABCIListenAddress: "tcp://127.0.0.1:26658",
		ABCI:              "socket",
		LogLevel:          DefaultPackageLogLevels(),
		LogFormat:         LogFormatPlain,
		LogPath:           "stdout",
		DBBackend:         "goleveldb",
		DBPath:            dataDir,
		KeepLastStates:    120,
		StateCacheSize:    1000000,
	}
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// DefaultLogLevel is the level of modules the log level does not name.
func DefaultLogLevel() string {
	return "error"
}

// DefaultPackageLogLevels keeps the state, api and main modules at info.
func DefaultPackageLogLevels() string {
	return "main:info,state:info,api:info,*:" + DefaultLogLevel()
}

func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func defaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		return "anonymous"
	}
	return moniker
}
