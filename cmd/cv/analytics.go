package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/ui"
)

var analyticsCmd = &cobra.Command{
	Use:     "analytics",
	GroupID: "core",
	Short:   "Show archive activity over a trailing period",
	Long: `Analytics aggregates archive activity over a trailing window.

Example usage:
  cv analytics                 # Last month
  cv analytics --period week   # Last 7 days
  cv analytics --period year`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		period, _ := cmd.Flags().GetString("period")
		analytics, err := st.ComputeAnalytics(cmd.Context(), period)
		if err != nil {
			return err
		}

		fmt.Printf("%s (since %s)\n", ui.RenderAccent("Archive activity: "+analytics.Period),
			analytics.StartDate.Local().Format("2006-01-02"))
		fmt.Printf("  Conversations:    %d\n", analytics.TotalConversations)
		fmt.Printf("  Active agents:    %d\n", analytics.ActiveAgents)
		fmt.Printf("  Messages sent:    %d\n", analytics.MessagesSent)
		fmt.Printf("  Avg conversation: %.1f messages\n", analytics.AvgConversationLength)
		return nil
	},
}

func init() {
	analyticsCmd.Flags().String("period", "month", "Trailing window: day, week, month, or year")

	rootCmd.AddCommand(analyticsCmd)
}
