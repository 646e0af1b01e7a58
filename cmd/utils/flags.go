package utils

import (
	"os"
	"path/filepath"
)

var (
	TilemintHome   string
	TilemintConfig string
)

func GetTilemintHome() string {
	if TilemintHome != "" {
		return TilemintHome
	}

	home := os.Getenv("TILEMINTHOME")

	if home != "" {
		return home
	}

	return os.ExpandEnv(filepath.Join("$HOME", ".tilemint"))
}

func GetTilemintConfigPath() string {
	if TilemintConfig != "" {
		return TilemintConfig
	}

	return GetTilemintHome() + "/config/config.toml"
}
