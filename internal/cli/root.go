package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/shiftsync/internal/config"
	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string
	Database   string // overrides the configured database
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the shiftsync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shiftsync",
		Short: "Sync WFM schedules into team shifts",
		Long: `shiftsync keeps each subscribed team's shifts, open shifts, time off and
availability in step with the WFM backend. Every team runs as a durable
workflow in a SQLite database; the serve command executes them and the
other commands inspect or control them through the same database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before SHIFTSYNC_* overrides")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite database (overrides config)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSubscribeCommand(opts))
	cmd.AddCommand(NewUnsubscribeCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewStopCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewUnskipCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewActionCommand(opts))

	return cmd
}

// Execute runs the command tree with args and returns the process exit
// code. Errors from cobra itself (unknown flags, wrong argument counts)
// are command errors.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		err = WrapExitError(ExitCommandError, "command error", err)
	}
	format, _ := cmd.PersistentFlags().GetString("format")
	out := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr}
	_ = out.Error(err)
	return GetExitCode(err)
}

// loadConfig reads the configuration and applies the command-line
// overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath, o.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// controlPlane is what the control commands need: the store, a host that
// can create and terminate instances, and the orchestrator on top. The
// host is never run here; a serve process on the same database executes
// what these commands schedule.
type controlPlane struct {
	cfg   *config.Config
	store *store.Store
	orch  *orchestrator.Orchestrator
}

func (o *RootOptions) openControl(logOut io.Writer) (*controlPlane, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	log := cfg.Logger(logOut)
	host := engine.NewHost(st, append(cfg.HostOptions(), engine.WithLogger(log))...)
	orch := orchestrator.New(st, nil, nil, orchestrator.WithSettings(settings), orchestrator.WithLogger(log))
	orch.Register(host)
	return &controlPlane{cfg: cfg, store: st, orch: orch}, nil
}

func (c *controlPlane) Close() {
	if err := c.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
