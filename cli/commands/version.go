package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/querykit/cli/internal/ui"
	"github.com/satishbabariya/querykit/cli/internal/version"
	"github.com/satishbabariya/querykit/query/loader"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	var apiVersion string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiVersion != "" {
				if err := loader.CheckAPIVersion(apiVersion); err != nil {
					return err
				}
				ui.PrintSuccess("apiVersion %s is supported", apiVersion)
				return nil
			}

			info := version.Get()
			if rootOpts.JSON() {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
			return nil
		},
	}

	cmd.Flags().StringVar(&apiVersion, "check", "", "check whether a definitions apiVersion is supported")
	return cmd
}
