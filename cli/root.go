// Package cli is the monitor command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"monitor/collector"
	"monitor/config"
	"monitor/logger"
	"monitor/query"
	"monitor/storage"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type RootCommand struct {
	cmd       *cobra.Command
	v         *viper.Viper
	cfg       *config.Config
	log       *logger.Logger
	logOut    io.Writer
	opts      *OutputOptions
	formatStr string
	cfgPath   string

	// Overridable in tests; opened lazily otherwise.
	source collector.HostSource
	store  storage.Store
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{
		v:      config.NewViper(),
		opts:   NewOutputOptions(),
		logOut: os.Stderr,
	}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Host resource monitor",
		Long: `monitor samples CPU, memory, disk and network usage of this host,
keeps the snapshots in a local database and answers queries over them
from the command line or over HTTP.`,
		SilenceUsage:      true,
		PersistentPreRunE: root.persistentPreRunE,
	}

	pflags := cmd.PersistentFlags()
	pflags.StringVarP(&root.formatStr, "output", "o", "table", "Output format (table, json, yaml)")
	pflags.StringVar(&root.cfgPath, "config", "", "Config file path (default: ./configs/config.yaml)")
	pflags.String("log-level", "", "Log level: debug, info, warn, error (default from config)")
	pflags.String("db-path", "", "SQLite database file (default from config)")
	pflags.String("db-driver", "", "Store driver: sqlite or memory (default from config)")

	root.bindFlag("LogLevel", pflags.Lookup("log-level"))
	root.bindFlag("DBPath", pflags.Lookup("db-path"))
	root.bindFlag("DBDriver", pflags.Lookup("db-driver"))

	root.cmd = cmd
	root.addSubCommands()
	return root
}

// bindFlag lets a flag override the config key it names. Unset flags
// fall through to env, file and defaults.
func (r *RootCommand) bindFlag(key string, flag *pflag.Flag) {
	_ = r.v.BindPFlag(key, flag)
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewServeCommand(r))
	r.cmd.AddCommand(NewCollectCommand(r))
	r.cmd.AddCommand(NewListCommand(r))
	r.cmd.AddCommand(NewLatestCommand(r))
	r.cmd.AddCommand(NewGetCommand(r))
	r.cmd.AddCommand(NewStatsCommand(r))
	r.cmd.AddCommand(NewInfoCommand(r))
	r.cmd.AddCommand(NewVersionCommand(r))
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	r.opts.Format = OutputFormat(r.formatStr)
	switch r.opts.Format {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("unknown output format %q", r.formatStr)
	}

	cfg, err := config.Load(r.v, r.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg

	log, err := logger.NewWithWriter(cfg.LogLevel, r.logOut)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	r.log = log
	return nil
}

func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

func (r *RootCommand) Config() *config.Config {
	return r.cfg
}

func (r *RootCommand) OutputOptions() *OutputOptions {
	return r.opts
}

func (r *RootCommand) SetOutputWriter(w io.Writer) {
	r.opts.Writer = w
	r.cmd.SetOut(w)
}

// Logger returns the configured logger, or a no-op one before
// persistentPreRunE has run.
func (r *RootCommand) Logger() *zap.Logger {
	if r.log == nil {
		return zap.NewNop()
	}
	return r.log.Logger
}

// Source returns the host reader backing collections.
func (r *RootCommand) Source() collector.HostSource {
	if r.source == nil {
		r.source = collector.NewGopsutilSource()
	}
	return r.source
}

// Store opens the configured store on first use.
func (r *RootCommand) Store() (storage.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	st, err := storage.Open(r.cfg.DBDriver, r.cfg.DBPath, r.Logger())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	r.store = st
	return st, nil
}

// Collector returns a host collector tuned by the loaded config.
func (r *RootCommand) Collector() *collector.HostCollector {
	c := collector.NewHostCollector(r.Source(), r.Logger())
	c.Window = r.cfg.SampleWindow
	c.Timeout = r.cfg.CollectTimeout
	return c
}

// Queries returns a query service over the configured store.
func (r *RootCommand) Queries() (*query.Service, error) {
	st, err := r.Store()
	if err != nil {
		return nil, err
	}
	return query.NewService(st, r.Logger()), nil
}

// Close releases the store and flushes the logger.
func (r *RootCommand) Close() error {
	var err error
	if r.store != nil {
		err = multierr.Append(err, r.store.Close())
		r.store = nil
	}
	if r.log != nil {
		logger.Flush(r.log.Logger)
	}
	return err
}

func (r *RootCommand) Execute() error {
	return r.ExecuteContext(context.Background())
}

func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	return multierr.Combine(r.cmd.ExecuteContext(ctx), r.Close())
}

// Execute runs the monitor command line until it finishes or the process
// receives SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}
