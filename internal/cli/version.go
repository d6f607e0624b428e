package cli

import (
	"fmt"
	"strings"

	"github.com/aretw0/settle"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of settle",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "settle version %s\n", strings.TrimSpace(settle.Version))
		},
	}
}
