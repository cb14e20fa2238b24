package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run the background sync daemon",
	Long: `Daemon keeps the archive fresh without manual syncing. It runs a sync
pass on a fixed interval, watches the category rules file and reloads the
classifier when it changes, and can serve a live WebSocket dashboard.

Dashboard messages include:
- sync_progress / sync_complete: sync run activity and results
- classify_progress / classify_complete: categorization activity
- archive_stats: conversation and agent totals after each pass

Example usage:
  cv daemon                          # Sync every 30 minutes
  cv daemon --interval 10m           # Custom interval
  cv daemon --dashboard-port 8080    # Enable the live dashboard
  cv daemon --log ~/.chatvault/daemon.log`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("export-dir"); dir != "" {
			cfg.ExportDir = dir
		}
		if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
			cfg.SyncInterval = interval
		}
		if port, _ := cmd.Flags().GetInt("dashboard-port"); port > 0 {
			cfg.DashboardPort = port
		}
		if logPath, _ := cmd.Flags().GetString("log"); logPath != "" {
			cfg.LogPath = logPath
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

		d, err := daemon.New(st, source, &daemon.Config{
			SyncInterval:  cfg.SyncInterval,
			RulesPath:     cfg.RulesPath,
			SinceDays:     cfg.SinceDays,
			SourceIDs:     cfg.Sources,
			MinConfidence: cfg.MinConfidence,
			Limiter:       newLimiter(cfg),
			DashboardPort: cfg.DashboardPort,
			LogPath:       cfg.LogPath,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Daemon started (sync every %v)\n", cfg.SyncInterval)
		if cfg.DashboardPort > 0 {
			fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n",
				cfg.DashboardPort, cfg.DashboardPort)
		}
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().String("export-dir", "", "Directory of conversation JSON exports (overrides config)")
	daemonCmd.Flags().Duration("interval", 0, "Sync interval (default from config)")
	daemonCmd.Flags().Int("dashboard-port", 0, "Serve the live dashboard on this port")
	daemonCmd.Flags().String("log", "", "Write rotating daemon logs to this file")

	rootCmd.AddCommand(daemonCmd)
}
