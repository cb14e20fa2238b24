package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/ui"
)

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "advanced",
	Short:   "Delete every conversation from the archive",
	Long: `Clear deletes all conversations, messages, and agent records from the
archive. The database file itself is kept.

This cannot be undone. A confirmation prompt is shown unless --force is
given.`,
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
		if count == 0 {
			fmt.Println("Archive is already empty.")
			return nil
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			var confirmed bool
			prompt := huh.NewConfirm().
				Title(fmt.Sprintf("Delete all %d conversations from %s?", count, st.Path())).
				Description("This cannot be undone.").
				Affirmative("Delete").
				Negative("Cancel").
				Value(&confirmed)
			if err := prompt.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		if err := st.Clear(cmd.Context()); err != nil {
			return err
		}

		fmt.Printf("%s Deleted %d conversations\n", ui.RenderPass("✓"), count)
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolP("force", "f", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(clearCmd)
}
