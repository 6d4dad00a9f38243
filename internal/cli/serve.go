package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/shiftsync/internal/api"
	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/metrics"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/sandbox"
	"github.com/roach88/shiftsync/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen  string
	Fixture string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow host and the HTTP trigger API",
		Long: `Run the durable workflow host and the admin HTTP API until interrupted.

Teams subscribed in the database resume where they left off. The WFM and
destination collaborators are the in-memory sandbox, seeded from the
configured fixture file.

Example:
  shiftsync serve --config shiftsync.yaml
  shiftsync serve --db ./shiftsync.db --fixture ./fixture.yaml --listen :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "sandbox fixture file (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.Fixture != "" {
		cfg.Sandbox.Fixture = opts.Fixture
	}
	settings, err := cfg.Settings()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	log := cfg.Logger(cmd.ErrOrStderr())

	src, dst := sandbox.NewSource(), sandbox.NewDestination()
	if cfg.Sandbox.Fixture != "" {
		fx, err := sandbox.LoadFixture(cfg.Sandbox.Fixture)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load fixture", err)
		}
		fx.Apply(src, dst)
		log.Info("sandbox fixture loaded", "path", cfg.Sandbox.Fixture, "business_unit", fx.BusinessUnit)
	} else {
		log.Warn("no sandbox fixture configured; collaborators start empty")
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	m := metrics.New()
	host := engine.NewHost(st, append(cfg.HostOptions(), engine.WithLogger(log), engine.WithObserver(m))...)
	orch := orchestrator.New(st, src, dst,
		orchestrator.WithSettings(settings),
		orchestrator.WithRecorder(m),
		orchestrator.WithLogger(log),
	)
	orch.Register(host)
	srv := api.New(orch, st, api.WithLogger(log), api.WithMetrics(m))

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Listen) })

	log.Info("shiftsync serving", "db", cfg.Database, "listen", cfg.Listen, "worker", host.WorkerID())
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.Listen)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "serve failed", err)
	}
	log.Info("shiftsync stopped")
	return nil
}
