package cli

import (
	"errors"
	"fmt"
	"strconv"

	"monitor/query"

	"github.com/spf13/cobra"
)

const (
	msgNoMetrics        = "No metrics available"
	msgNoMetricsInRange = "No metrics available for the specified time range"
	msgNotFound         = "Not found."
)

func NewListCommand(root *RootCommand) *cobra.Command {
	var hours string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Example: `  # Everything
  monitor list

  # The last six hours as JSON
  monitor list --hours 6 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.Queries()
			if err != nil {
				return err
			}
			snaps, err := svc.List(cmd.Context(), hours)
			if err != nil {
				return err
			}
			return PrintOutput(snaps, root.OutputOptions())
		},
	}

	cmd.Flags().StringVar(&hours, "hours", "", "Only snapshots from the last N hours")
	return cmd
}

func NewLatestCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.Queries()
			if err != nil {
				return err
			}
			snap, err := svc.Latest(cmd.Context())
			if errors.Is(err, query.ErrNoData) {
				return printMessage(root, msgNoMetrics)
			}
			if err != nil {
				return err
			}
			return PrintOutput(snap, root.OutputOptions())
		},
	}
}

func NewGetCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show one stored snapshot by id",
		Example: `  monitor get 42 -o json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q", args[0])
			}
			svc, err := root.Queries()
			if err != nil {
				return err
			}
			snap, err := svc.Get(cmd.Context(), id)
			if errors.Is(err, query.ErrNoData) {
				return printMessage(root, msgNotFound)
			}
			if err != nil {
				return err
			}
			return PrintOutput(snap, root.OutputOptions())
		},
	}
}

func NewStatsCommand(root *RootCommand) *cobra.Command {
	var hours string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise CPU and memory usage over a time window",
		Example: `  # The last 24 hours
  monitor stats

  # The last week
  monitor stats --hours 168`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.Queries()
			if err != nil {
				return err
			}
			summary, err := svc.Stats(cmd.Context(), hours)
			if errors.Is(err, query.ErrNoData) {
				return printMessage(root, msgNoMetricsInRange)
			}
			if err != nil {
				return err
			}
			return PrintOutput(summary, root.OutputOptions())
		},
	}

	cmd.Flags().StringVar(&hours, "hours", "", fmt.Sprintf("Window size in hours (default %d)", query.DefaultStatsHours))
	return cmd
}

// printMessage reports an empty result. It is not an error: the command
// still exits zero.
func printMessage(root *RootCommand, msg string) error {
	opts := root.OutputOptions()
	if opts.Format == OutputTable {
		_, err := fmt.Fprintln(opts.Writer, msg)
		return err
	}
	return PrintOutput(map[string]string{"message": msg}, opts)
}
