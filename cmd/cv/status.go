package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "core",
	Short:   "Show archive location and totals",
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

		count, err := st.ConversationCount(cmd.Context())
		if err != nil {
			return err
		}
		agents, err := st.ListAgents(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", ui.RenderAccent("ChatVault archive"))
		fmt.Printf("  Database:      %s\n", st.Path())
		fmt.Printf("  Conversations: %d\n", count)
		fmt.Printf("  Agents:        %d\n", len(agents))
		if cfg.RulesPath != "" {
			fmt.Printf("  Rules file:    %s\n", cfg.RulesPath)
		} else {
			fmt.Printf("  Rules file:    %s\n", ui.RenderFaint("(built-in rules)"))
		}
		if cfg.ExportDir != "" {
			fmt.Printf("  Export dir:    %s\n", cfg.ExportDir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
