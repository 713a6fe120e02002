package cli

import (
	"fmt"

	"karte/internal/infrastructure/config"
	"karte/internal/libraries/variables"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "karte %s\n", config.SDKVersion)
			fmt.Fprintf(out, "%s %s\n", variables.LibraryName, variables.LibraryVersion)
			return nil
		},
	}
}
