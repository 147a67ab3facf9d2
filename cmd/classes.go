package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/aqsharvest/internal/harvest"
	"github.com/JakeFAU/aqsharvest/internal/prompt"
)

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List the selectable parameter classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompt.New(cmd.InOrStdin(), cmd.OutOrStdout()).ShowCatalog(harvest.Catalog())
			return nil
		},
	}
}
