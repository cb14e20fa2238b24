package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:    "seed",
	Hidden: true,
	Short:  "Populate the archive with sample conversations",
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

		if err := st.SeedSampleData(cmd.Context()); err != nil {
			return err
		}

		fmt.Printf("%s Sample conversations added\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
