package cli

import (
	"github.com/spf13/cobra"
)

func NewInfoCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the host platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := root.Collector().SystemInfo(cmd.Context())
			if err != nil {
				return err
			}
			return PrintOutput(info, root.OutputOptions())
		},
	}
}
