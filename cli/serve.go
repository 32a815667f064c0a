package cli

import (
	"context"

	"monitor/api"
	"monitor/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Collect on a schedule and serve the HTTP API",
		Long: `Start the background collector and the HTTP API.

A snapshot is taken immediately and then once per collection interval.
Both stop gracefully on SIGINT or SIGTERM.`,
		Example: `  # Serve with defaults
  monitor serve

  # Sample every 10 seconds on port 9000
  monitor serve --listen :9000 --interval 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (default from config)")
	cmd.Flags().String("interval", "", "Collection interval, e.g. 30s (default from config)")
	root.bindFlag("ListenAddr", cmd.Flags().Lookup("listen"))
	root.bindFlag("CollectInterval", cmd.Flags().Lookup("interval"))

	return cmd
}

func runServe(ctx context.Context, root *RootCommand) error {
	cfg := root.Config()
	log := root.Logger()

	st, err := root.Store()
	if err != nil {
		return err
	}
	queries, err := root.Queries()
	if err != nil {
		return err
	}

	hc := root.Collector()
	sched := scheduler.New(hc, st, cfg.CollectInterval, log.Named("scheduler"))
	srv := api.NewServer(api.Options{
		Addr:      cfg.ListenAddr,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, queries, sched, sched, hc, log.Named("api"))

	log.Info("monitor starting",
		zap.String("driver", cfg.DBDriver),
		zap.String("db", cfg.DBPath),
		zap.Duration("interval", cfg.CollectInterval),
		zap.String("addr", cfg.ListenAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("monitor stopped with error", zap.Error(err))
		return err
	}
	log.Info("monitor stopped")
	return nil
}
