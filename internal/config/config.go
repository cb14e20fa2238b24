// Package config loads cv configuration from defaults, an optional YAML
// file, and CHATVAULT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved cv configuration.
type Config struct {
	// DBPath is the SQLite archive location
	DBPath string `mapstructure:"db_path"`

	// RulesPath is the category rules TOML file. Empty uses built-in rules.
	RulesPath string `mapstructure:"rules_path"`

	// ExportDir is the directory of conversation JSON exports to sync from
	ExportDir string `mapstructure:"export_dir"`

	// Sources limits sync to specific agent identifiers
	Sources []string `mapstructure:"sources"`

	// SinceDays is the default sync discovery window
	SinceDays int `mapstructure:"since_days"`

	// MinConfidence is the categorization acceptance threshold
	MinConfidence float64 `mapstructure:"min_confidence"`

	// Rate limiting for ingest calls
	RateMaxCalls int           `mapstructure:"rate_max_calls"`
	RateWindow   time.Duration `mapstructure:"rate_window"`

	// Backoff policy for transient fetch failures
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	BackoffRetries int           `mapstructure:"backoff_retries"`

	// Daemon settings
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
	DashboardPort int           `mapstructure:"dashboard_port"`
	LogPath       string        `mapstructure:"log_path"`
}

// Load resolves configuration. An explicit path must exist; otherwise
// config.yaml is searched in the working directory and ~/.chatvault, and
// its absence is fine.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("rules_path", "")
	v.SetDefault("export_dir", "")
	v.SetDefault("sources", []string{})
	v.SetDefault("since_days", 7)
	v.SetDefault("min_confidence", 0.5)
	v.SetDefault("rate_max_calls", 8)
	v.SetDefault("rate_window", time.Minute)
	v.SetDefault("backoff_base", 5*time.Second)
	v.SetDefault("backoff_max", 60*time.Second)
	v.SetDefault("backoff_retries", 3)
	v.SetDefault("sync_interval", 30*time.Minute)
	v.SetDefault("dashboard_port", 0)
	v.SetDefault("log_path", "")

	v.SetEnvPrefix("CHATVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".chatvault"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// defaultDBPath places the archive under ~/.chatvault, falling back to the
// working directory when the home directory is unknown.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chatvault.db"
	}
	return filepath.Join(home, ".chatvault", "chatvault.db")
}
