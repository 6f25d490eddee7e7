package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	defaultGateway = "http://localhost:8000"
	gatewayEnv     = "TASKHAVEN_GATEWAY"
)

type Config struct {
	Gateway     string `toml:"gateway"`
	SessionFile string `toml:"session_file"`
	LogFile     string `toml:"log_file"`
}

// configDir is ~/.config/taskhaven on Linux.
func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "taskhaven"), nil
}

func defaultConfig(dir string) Config {
	return Config{
		Gateway:     defaultGateway,
		SessionFile: filepath.Join(dir, "session.json"),
		LogFile:     filepath.Join(dir, "todo.log"),
	}
}

// loadConfig layers defaults, the file at path (if any) and the
// environment. Flags are applied by the caller.
func loadConfig(path, dir string) (Config, error) {
	cfg := defaultConfig(dir)

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}

	if v := os.Getenv(gatewayEnv); v != "" {
		cfg.Gateway = v
	}

	return cfg, nil
}
