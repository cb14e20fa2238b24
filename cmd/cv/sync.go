package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/syncer"
	"github.com/chatvault/chatvault/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "core",
	Short:   "Sync conversations from the export directory into the archive",
	Long: `Sync pulls conversations from the configured export directory into the
local archive. Each conversation is saved atomically: either the full
conversation with all its messages lands, or nothing changes.

Syncing the same conversations again is safe; unchanged content is simply
updated in place. Fetches are rate limited, and transient failures are
retried with exponential backoff. Press Ctrl+C to stop cleanly between
conversations; progress up to that point is kept.

Example usage:
  cv sync                               # Sync the last 7 days
  cv sync --since-days 30               # Widen the discovery window
  cv sync --agent claude-3              # Only one agent's conversations
  cv sync --id conv_abc123              # Sync specific conversations by id
  cv sync --classify                    # Categorize new conversations after sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("export-dir"); dir != "" {
			cfg.ExportDir = dir
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		source, err := newSource(cfg)
		if err != nil {
			return err
		}

		scfg := &syncer.Config{
			Limiter: newLimiter(cfg),
			Backoff: syncer.Backoff{
				BaseDelay:  cfg.BackoffBase,
				MaxDelay:   cfg.BackoffMax,
				MaxRetries: cfg.BackoffRetries,
				JitterLow:  0.5,
				JitterHigh: 1.5,
			},
			OnProgress: func(p syncer.Progress) {
				fmt.Printf("\r%-60s", fmt.Sprintf("[%3d%%] %s", p.Percent, p.Status))
			},
		}

		if withClassify, _ := cmd.Flags().GetBool("classify"); withClassify {
			classifier, err := newClassifier(cfg, st, nil)
			if err != nil {
				return err
			}
			scfg.Classifier = classifier
		}

		agents, _ := cmd.Flags().GetStringSlice("agent")
		ids, _ := cmd.Flags().GetStringSlice("id")
		sinceDays, _ := cmd.Flags().GetInt("since-days")
		if sinceDays == 0 {
			sinceDays = cfg.SinceDays
		}
		if len(agents) == 0 {
			agents = cfg.Sources
		}

		coord := syncer.New(source, st, scfg)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		stats, err := coord.Run(ctx, syncer.Options{
			SourceIDs:       agents,
			ConversationIDs: ids,
			SinceDays:       sinceDays,
		})
		fmt.Println()
		if err != nil {
			return err
		}

		fmt.Printf("%s Synced %d conversations: %d new, %d updated, %d failed (%d agents)\n",
			ui.RenderPass("✓"), stats.Total, stats.New, stats.Updated, stats.Failed, stats.Agents)
		if ctx.Err() != nil {
			fmt.Println(ui.RenderWarn("Sync was interrupted; run again to pick up the rest."))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().String("export-dir", "", "Directory of conversation JSON exports (overrides config)")
	syncCmd.Flags().StringSlice("agent", nil, "Limit sync to these agent ids")
	syncCmd.Flags().StringSlice("id", nil, "Sync specific conversation ids, skipping discovery")
	syncCmd.Flags().Int("since-days", 0, "Discovery window in days (default from config)")
	syncCmd.Flags().Bool("classify", false, "Categorize uncategorized conversations after sync")

	rootCmd.AddCommand(syncCmd)
}
