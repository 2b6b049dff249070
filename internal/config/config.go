// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads and persists hashall's TOML configuration, layering
// environment variable overrides on top via viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the catalog engine's application configuration.
type Config struct {
	DatabasePath string `toml:"databasePath" mapstructure:"databasePath"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	// ScanWorkers bounds the concurrent hashing worker pool used by a scan.
	ScanWorkers int `toml:"scanWorkers" mapstructure:"scanWorkers"`

	// QuickHashSampleBytes is how much of a file's head is read for the
	// cheap first-pass hash before a full hash is considered.
	QuickHashSampleBytes int64 `toml:"quickHashSampleBytes" mapstructure:"quickHashSampleBytes"`

	configPath string
}

const (
	defaultLogLevel             = "INFO"
	defaultLogMaxSize           = 50
	defaultLogMaxBackups        = 3
	defaultScanWorkers          = 4
	defaultQuickHashSampleBytes = 1 << 20 // 1 MiB
	defaultDatabaseName         = "catalog.db"
	envPrefix                   = "HASHALL"
)

// New loads configuration from configPath, generating a commented default
// file on first run, then layers HASHALL_-prefixed environment variables on
// top (double underscore separates nested keys, e.g. HASHALL__DATABASE_PATH).
func New(configPath string) (*Config, error) {
	if err := ensureConfigFile(configPath); err != nil {
		return nil, fmt.Errorf("ensure config file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	v.SetDefault("logLevel", defaultLogLevel)
	v.SetDefault("logMaxSize", defaultLogMaxSize)
	v.SetDefault("logMaxBackups", defaultLogMaxBackups)
	v.SetDefault("scanWorkers", defaultScanWorkers)
	v.SetDefault("quickHashSampleBytes", defaultQuickHashSampleBytes)

	v.SetEnvPrefix(envPrefix)
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("bind env vars: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{configPath: configPath}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(filepath.Dir(configPath), defaultDatabaseName)
	}

	return cfg, nil
}

// GetDatabasePath returns the resolved catalog database path, defaulting to
// a file named catalog.db next to the config file when unset.
func (c *Config) GetDatabasePath() string {
	return c.DatabasePath
}

// bindEnvVars maps each config key to its HASHALL__SNAKE_CASE environment
// variable (double underscore separates the prefix from the key, matching
// the teacher's nested-key convention).
func bindEnvVars(v *viper.Viper) error {
	binds := map[string]string{
		"databasePath":         "DATABASE_PATH",
		"logLevel":             "LOG_LEVEL",
		"logPath":              "LOG_PATH",
		"logMaxSize":           "LOG_MAX_SIZE",
		"logMaxBackups":        "LOG_MAX_BACKUPS",
		"scanWorkers":          "SCAN_WORKERS",
		"quickHashSampleBytes": "QUICK_HASH_SAMPLE_BYTES",
	}
	for key, envSuffix := range binds {
		if err := v.BindEnv(key, envPrefix+"__"+envSuffix); err != nil {
			return err
		}
	}
	return nil
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	return os.WriteFile(path, []byte(defaultConfigTOML), 0o644)
}

const defaultConfigTOML = `# hashall config.toml - auto-generated on first run

# Path to the catalog database.
# Default: catalog.db next to this config file
#databasePath = "/var/lib/hashall/hashall.db"

# Log level
# Default: "INFO"
# Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
logLevel = "INFO"

# Log file path
# If not defined, logs to stderr
# Optional
#logPath = "log/hashall.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Number of concurrent hashing workers during a scan
# Default: 4
#scanWorkers = 4

# Bytes read from the head of a file for the cheap first-pass hash
# Default: 1048576 (1 MiB)
#quickHashSampleBytes = 1048576
`
