package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaos-io/nobg/rembg"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the available model presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range rembg.Models {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s) %-18s %s\n", m.Key, m.Name, m.Description)
			}
			return nil
		},
	}
}
