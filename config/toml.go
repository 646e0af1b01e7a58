package config

import (
	"bytes"
	"path/filepath"
	"text/template"

	tmos "github.com/tendermint/tendermint/libs/os"
)

var configTemplate *template.Template

func init() {
	var err error
	if configTemplate, err = template.New("configFileTemplate").Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// EnsureRoot creates the node home with its config and data directories and
// writes the default config file when there is none. It panics on failure.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, 0700); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, configDir), 0700); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, dataDir), 0700); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, configFile)

	if !tmos.FileExists(configFilePath) {
		WriteConfigFile(configFilePath, DefaultConfig())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
func WriteConfigFile(configFilePath string, config *Config) {
	tmos.MustWriteFile(configFilePath, RenderConfig(config), 0644)
}

// RenderConfig renders config using the template.
func RenderConfig(config *Config) []byte {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	return buffer.Bytes()
}

// defaultConfigTemplate must list every mapstructure key of Config.
const defaultConfigTemplate = `# tilemint node configuration

moniker = "{{ .BaseConfig.Moniker }}"

# mainnet | testnet
network = "{{ .BaseConfig.Network }}"

genesis_file = "{{ js .BaseConfig.Genesis }}"

# Tendermint connects to the application here: socket | grpc
abci_listen_addr = "{{ .BaseConfig.ABCIListenAddress }}"
abci = "{{ .BaseConfig.ABCI }}"

# goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"
db_dir = "{{ js .BaseConfig.DBPath }}"

# Per module levels, e.g. "state:debug,*:error"
log_level = "{{ .BaseConfig.LogLevel }}"
# plain | json
log_format = "{{ .BaseConfig.LogFormat }}"
log_path = "{{ .BaseConfig.LogPath }}"

# Committed state versions kept on disk. Historical queries and exports
# can only reach this far back.
keep_last_states = {{ .BaseConfig.KeepLastStates }}
state_cache_size = {{ .BaseConfig.StateCacheSize }}

# Stop the node after committing this height, 0 disables
halt_height = {{ .BaseConfig.HaltHeight }}

[api]
listen_addr = "{{ .API.ListenAddress }}"
simultaneous_requests = {{ .API.SimultaneousRequests }}
# Open /events/subscribe websockets
max_subscribers = {{ .API.MaxSubscribers }}
subscription_poll_interval = "{{ .API.SubscriptionPollInterval }}"

[metrics]
# Serve token, grid and block gauges on /metrics
prometheus = {{ .Metrics.Prometheus }}
listen_addr = "{{ .Metrics.ListenAddress }}"
namespace = "{{ .Metrics.Namespace }}"
`
