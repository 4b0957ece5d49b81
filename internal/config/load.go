package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds values bound from cobra persistent flags, applied as
// the final (highest-priority) layer of the override chain.
type CLIOverrides struct {
	ConfigPath string
	DSN        string
}

// Load reads and parses a TOML config file on top of DefaultConfig, so any
// key the file omits keeps its default value.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", slog.String("path", path))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads path if it exists, otherwise returns DefaultConfig —
// the zero-config first-run experience.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve applies the full four-layer override chain: defaults -> config
// file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if env.DSN != "" {
		cfg.Remote.DSN = env.DSN
	}

	if cli.DSN != "" {
		cfg.Remote.DSN = cli.DSN
	}

	return cfg, nil
}
