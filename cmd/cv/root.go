package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/classify"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/ingest"
	"github.com/chatvault/chatvault/internal/schema"
	"github.com/chatvault/chatvault/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "cv",
	Short: "Local archive for AI chat conversations",
	Long: `cv maintains a local, searchable archive of AI chat conversations.

Conversations are synced from exported JSON files into a SQLite database,
indexed for full-text search, and categorized by topic using configurable
keyword and pattern rules. Everything stays on your machine.

Common workflow:
  cv sync --export-dir ~/exports     # Pull new conversations into the archive
  cv list --since "last week"        # Browse recent conversations
  cv search "rate limiting"          # Full-text search across messages
  cv classify                        # Categorize uncategorized conversations`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./config.yaml or ~/.chatvault/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Archive database path (overrides config)")
}

// loadConfig resolves configuration with command line overrides applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}

// openStore opens the archive database and ensures the schema exists.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newSource builds the ingest source from the configured export directory.
func newSource(cfg *config.Config) (ingest.Source, error) {
	if cfg.ExportDir == "" {
		return nil, fmt.Errorf("no export directory configured (set export_dir or pass --export-dir)")
	}
	return ingest.NewDirSource(cfg.ExportDir), nil
}

// newLimiter builds the shared ingest rate limiter from config.
func newLimiter(cfg *config.Config) *ingest.RateLimiter {
	return ingest.NewRateLimiter(cfg.RateMaxCalls, cfg.RateWindow,
		100*time.Millisecond, 500*time.Millisecond)
}

// loadRules returns the configured rules file, or the built-in set.
func loadRules(cfg *config.Config) ([]schema.CategoryRule, error) {
	if cfg.RulesPath == "" {
		return schema.DefaultRules(), nil
	}
	return schema.LoadRulesFile(cfg.RulesPath)
}

// newClassifier builds a classifier writing through the given store.
func newClassifier(cfg *config.Config, st *store.Store, ccfg *classify.Config) (*classify.Classifier, error) {
	rules, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}
	if ccfg == nil {
		ccfg = &classify.Config{}
	}
	if ccfg.Writer == nil {
		ccfg.Writer = st
	}
	return classify.New(rules, cfg.MinConfidence, ccfg)
}
