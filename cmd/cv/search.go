package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "core",
	Short:   "Full-text search across archived messages",
	Long: `Search runs a case-insensitive full-text search over message content.
Results are ranked by relevance, with ties broken by recency.

Example usage:
  cv search "rate limiting"
  cv search backoff --agent claude-3
  cv search "connection pool" --limit 10`,
	Args: cobra.MinimumNArgs(1),
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

		filter := store.SearchFilter{}
		filter.SourceID, _ = cmd.Flags().GetString("agent")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		query := strings.Join(args, " ")
		results, err := st.SearchMessages(cmd.Context(), query, filter)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Printf("No messages match %q.\n", query)
			return nil
		}

		for _, r := range results {
			title := r.ConversationTitle
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s\n", ui.RenderAccent(r.ConversationID), title)
			fmt.Printf("    %s\n", ui.RenderFaint(fmt.Sprintf("%s | %s | %s",
				r.ConversationSource, r.Role, r.Timestamp.Local().Format("2006-01-02 15:04"))))
			fmt.Printf("    %s\n", snippet(r.Content, 160))
		}
		fmt.Printf("\n%d matches\n", len(results))
		return nil
	},
}

// snippet collapses whitespace and truncates content for one-line display.
func snippet(content string, max int) string {
	s := strings.Join(strings.Fields(content), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func init() {
	searchCmd.Flags().String("agent", "", "Only messages from this agent's conversations")
	searchCmd.Flags().IntP("limit", "n", 0, "Maximum matches to show (default 50)")

	rootCmd.AddCommand(searchCmd)
}
