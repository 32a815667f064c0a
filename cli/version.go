package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X monitor/cli.cliVersion=...".
var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

func GetVersion() string   { return cliVersion }
func GetBuildDate() string { return cliBuildDate }
func GetGitCommit() string { return cliGitCommit }

func NewVersionCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// No config or logger needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			root.opts.Format = OutputFormat(root.formatStr)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(root.OutputOptions())
		},
	}
}

func printVersion(opts *OutputOptions) error {
	versionInfo := map[string]string{
		"version":   GetVersion(),
		"buildDate": GetBuildDate(),
		"gitCommit": GetGitCommit(),
	}

	if opts.Format == OutputJSON || opts.Format == OutputYAML {
		return PrintOutput(versionInfo, opts)
	}
	fmt.Fprintf(opts.Writer, "monitor version %s\n", GetVersion())
	fmt.Fprintf(opts.Writer, "  Commit: %s\n", GetGitCommit())
	fmt.Fprintf(opts.Writer, "  Built:  %s\n", GetBuildDate())
	return nil
}
