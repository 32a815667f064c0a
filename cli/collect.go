package cli

import (
	"monitor/scheduler"

	"github.com/spf13/cobra"
)

func NewCollectCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Take one snapshot now and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.Store()
			if err != nil {
				return err
			}
			sched := scheduler.New(root.Collector(), st, root.Config().CollectInterval, root.Logger())
			snap, err := sched.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return PrintOutput(snap, root.OutputOptions())
		},
	}
}
