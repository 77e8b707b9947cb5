package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at release time via -ldflags.
var Version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the archforge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "archforge "+Version)
		},
	}
}
