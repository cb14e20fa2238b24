package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/classify"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/ui"
)

var classifyCmd = &cobra.Command{
	Use:     "classify",
	GroupID: "core",
	Short:   "Categorize archived conversations by topic",
	Long: `Classify scores conversations against the configured category rules and
stores the best category for each one that clears the confidence threshold.

By default only uncategorized conversations are processed; --all rescores
everything, which is useful after changing the rules file.

Example usage:
  cv classify                       # Categorize the uncategorized
  cv classify --all                 # Rescore every conversation
  cv classify --min-confidence 0.7  # Demand a stronger signal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if mc, _ := cmd.Flags().GetFloat64("min-confidence"); mc > 0 {
			cfg.MinConfidence = mc
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		all, _ := cmd.Flags().GetBool("all")
		conversations, err := st.ListConversations(cmd.Context(), store.ListFilter{
			Uncategorized: !all,
		})
		if err != nil {
			return err
		}
		if len(conversations) == 0 {
			fmt.Println("Nothing to categorize.")
			return nil
		}

		// Scoring needs message bodies; list results are headers only.
		for i, conv := range conversations {
			full, err := st.GetConversation(cmd.Context(), conv.ID)
			if err != nil {
				return err
			}
			if full != nil {
				conversations[i] = full
			}
		}

		classifier, err := newClassifier(cfg, st, &classify.Config{
			OnResult: func(id, category string, confidence float64) {
				fmt.Printf("%s %s -> %s %s\n", ui.RenderPass("✓"), id, category,
					ui.RenderFaint(fmt.Sprintf("(%.2f)", confidence)))
			},
		})
		if err != nil {
			return err
		}

		stats, err := classifier.ClassifyBatch(cmd.Context(), conversations)
		if err != nil {
			return err
		}

		fmt.Printf("\nCategorized %d of %d conversations (%d unchanged, %d failed)\n",
			stats.Categorized, stats.Total, stats.Unchanged, stats.Failed)
		return nil
	},
}

var suggestCmd = &cobra.Command{
	Use:     "suggest <conversation-id>",
	GroupID: "core",
	Short:   "Show the suggested category for one conversation",
	Long: `Suggest scores one conversation against the category rules and prints
the winning category and confidence without storing anything.

Example usage:
  cv suggest conv_abc123`,
	Args: cobra.ExactArgs(1),
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

		conv, err := st.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if conv == nil {
			return fmt.Errorf("conversation %s not found", args[0])
		}

		classifier, err := newClassifier(cfg, st, nil)
		if err != nil {
			return err
		}

		suggestion, ok := classifier.Suggest(conv.Text())
		if !ok {
			fmt.Println("No category clears the confidence threshold.")
			return nil
		}

		fmt.Printf("%s %s\n", ui.RenderAccent(suggestion.Category),
			ui.RenderFaint(fmt.Sprintf("(confidence %.2f)", suggestion.Confidence)))
		if conv.Category != "" && conv.Category != suggestion.Category {
			fmt.Printf("Currently categorized as %s.\n", conv.Category)
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().Bool("all", false, "Rescore every conversation, not just uncategorized ones")
	classifyCmd.Flags().Float64("min-confidence", 0, "Acceptance threshold between 0 and 1 (overrides config)")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(suggestCmd)
}
