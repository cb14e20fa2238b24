package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "core",
	Short:   "List archived conversations",
	Long: `List shows archived conversations ordered by most recent activity.

The --since flag accepts natural language as well as plain day counts:

  cv list --since "3 days ago"
  cv list --since "last monday"
  cv list --days 30
  cv list --agent gpt-4 --uncategorized`,
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

		filter := store.ListFilter{}
		filter.SourceID, _ = cmd.Flags().GetString("agent")
		filter.Uncategorized, _ = cmd.Flags().GetBool("uncategorized")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		filter.SinceDays, _ = cmd.Flags().GetInt("days")

		if since, _ := cmd.Flags().GetString("since"); since != "" {
			days, err := parseSinceDays(since)
			if err != nil {
				return err
			}
			filter.SinceDays = days
		}

		conversations, err := st.ListConversations(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		for _, conv := range conversations {
			title := conv.Title
			if title == "" {
				title = "(untitled)"
			}
			category := conv.Category
			if category == "" {
				category = "-"
			}
			fmt.Printf("%s  %s\n", ui.RenderAccent(conv.ID), title)
			fmt.Printf("    %s\n", ui.RenderFaint(fmt.Sprintf("%s | %s | %d messages | %s",
				conv.SourceID, category, conv.MessageCount,
				conv.UpdatedAt.Local().Format("2006-01-02 15:04"))))
		}
		fmt.Printf("\n%d conversations\n", len(conversations))
		return nil
	},
}

// parseSinceDays turns a natural-language time expression into a trailing
// day count for the list filter.
func parseSinceDays(text string) (int, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, time.Now())
	if err != nil || result == nil {
		return 0, fmt.Errorf("could not understand time expression %q", text)
	}

	days := int(time.Since(result.Time).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days, nil
}

func init() {
	listCmd.Flags().String("agent", "", "Only conversations from this agent")
	listCmd.Flags().String("since", "", "Natural language time bound, e.g. \"last week\"")
	listCmd.Flags().Int("days", 0, "Only conversations created in the last N days")
	listCmd.Flags().Bool("uncategorized", false, "Only conversations without a category")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum conversations to show")

	rootCmd.AddCommand(listCmd)
}
