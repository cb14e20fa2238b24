package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/ui"
)

var agentsCmd = &cobra.Command{
	Use:     "agents",
	GroupID: "core",
	Short:   "List agents seen in the archive",
	Long: `Agents lists every agent the archive has conversations for, most
recently used first. The counts are derived from stored conversations and
stay consistent with them.`,
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

		agents, err := st.ListAgents(cmd.Context())
		if err != nil {
			return err
		}

		if len(agents) == 0 {
			fmt.Println("No agents in the archive yet. Run 'cv sync' first.")
			return nil
		}

		for _, a := range agents {
			fmt.Printf("%s\n", ui.RenderAccent(a.SourceID))
			fmt.Printf("    %s\n", ui.RenderFaint(fmt.Sprintf(
				"%d conversations, %d messages | first seen %s, last used %s",
				a.ConversationCount, a.MessageCount,
				a.FirstSeen.Local().Format("2006-01-02"),
				a.LastUsed.Local().Format("2006-01-02"))))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
