package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autocrm-inc/autocrm/internal/shared/version"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "autocrm %s", info.Version)
			if info.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", info.Commit)
			}
			if !info.Release {
				fmt.Fprint(cmd.OutOrStdout(), " [development build]")
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
