package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	From      string
	To        string
	Entities  []string
	Groups    bool
	Snapshots bool
	Notify    bool
}

type clearResult struct {
	TeamID  string `json:"teamId"`
	Started bool   `json:"started"`
}

func (r clearResult) renderText(w io.Writer) {
	if r.Started {
		fmt.Fprintf(w, "team %s: clear started\n", r.TeamID)
		return
	}
	fmt.Fprintf(w, "team %s: a clear is already running\n", r.TeamID)
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear <team-id>",
		Short: "Delete a date range from a team's destination schedule",
		Long: `Start a ClearSchedule workflow that deletes the team's shifts, open shifts
and time off starting in [from, to). Optionally scheduling groups and the
team's snapshots in the range are removed too.

Example:
  shiftsync clear team-1 --from 2024-01-08 --to 2024-01-15 --snapshots`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "first date to clear (yyyy-mm-dd, required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end date, exclusive (yyyy-mm-dd, required)")
	cmd.Flags().StringSliceVar(&opts.Entities, "entities", nil, "entity types to clear (default shifts, open shifts and time off)")
	cmd.Flags().BoolVar(&opts.Groups, "groups", false, "also empty the team's scheduling groups")
	cmd.Flags().BoolVar(&opts.Snapshots, "snapshots", false, "also delete snapshots of weeks in the range")
	cmd.Flags().BoolVar(&opts.Notify, "notify", false, "notify team members when the cleared range is shared")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runClear(cmd *cobra.Command, opts *ClearOptions, teamID string) error {
	out := opts.formatter(cmd)
	start, end, err := parseRange(opts.From, opts.To)
	if err != nil {
		return err
	}
	in := orchestrator.ClearInput{
		TeamID:         teamID,
		Start:          start,
		End:            end,
		ClearGroups:    opts.Groups,
		ClearSnapshots: opts.Snapshots,
		Notify:         opts.Notify,
	}
	for _, name := range opts.Entities {
		et, err := model.ParseEntityType(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --entities", err)
		}
		in.Entities = append(in.Entities, et)
	}
	if err := in.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid clear request", err)
	}

	cp, err := opts.openControl(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cp.Close()

	started, err := cp.orch.StartClear(cmd.Context(), in)
	if err != nil {
		return controlError("clear", teamID, err)
	}
	return out.Success(clearResult{TeamID: teamID, Started: started})
}

// ActionOptions holds flags for the action command.
type ActionOptions struct {
	*RootOptions
	RequestType string
	RequestID   string
	Message     string
	Delay       time.Duration
	From        string
	To          string
	Notify      bool
}

type actionResult struct {
	TeamID     string `json:"teamId"`
	Kind       string `json:"kind"`
	InstanceID string `json:"instanceId"`
}

func (r actionResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "team %s: %s scheduled as %s\n", r.TeamID, r.Kind, r.InstanceID)
}

// NewActionCommand creates the action command.
func NewActionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "action <team-id> <approve|decline|share>",
		Short: "Schedule a deferred approve, decline or share",
		Long: `Start a DeferredAction workflow that waits on a durable timer and then
approves or declines a pending request, or shares a schedule range.

Examples:
  shiftsync action team-1 approve --request-type swap --request-id r-42 --delay 30s
  shiftsync action team-1 share --from 2024-01-08 --to 2024-01-15 --notify`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.RequestType, "request-type", "", "request type (approve, decline)")
	cmd.Flags().StringVar(&opts.RequestID, "request-id", "", "request id (approve, decline)")
	cmd.Flags().StringVar(&opts.Message, "message", "", "message sent with the decision")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 0, "wait this long before dispatching")
	cmd.Flags().StringVar(&opts.From, "from", "", "share range start (yyyy-mm-dd)")
	cmd.Flags().StringVar(&opts.To, "to", "", "share range end, exclusive (yyyy-mm-dd)")
	cmd.Flags().BoolVar(&opts.Notify, "notify", false, "notify team members of the share")

	return cmd
}

func runAction(cmd *cobra.Command, opts *ActionOptions, teamID, kind string) error {
	out := opts.formatter(cmd)
	in := orchestrator.DeferredInput{
		TeamID:       teamID,
		Kind:         orchestrator.ActionKind(kind),
		RequestType:  opts.RequestType,
		RequestID:    opts.RequestID,
		Message:      opts.Message,
		DelaySeconds: int(opts.Delay / time.Second),
		Notify:       opts.Notify,
	}
	if opts.From != "" || opts.To != "" {
		start, end, err := parseRange(opts.From, opts.To)
		if err != nil {
			return err
		}
		in.RangeStart, in.RangeEnd = start, end
	}
	if err := in.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid action", err)
	}

	cp, err := opts.openControl(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cp.Close()

	id, err := cp.orch.ScheduleAction(cmd.Context(), in)
	if err != nil {
		return controlError("action", teamID, err)
	}
	return out.Success(actionResult{TeamID: teamID, Kind: kind, InstanceID: id})
}

type unskipResult struct {
	Key     model.SnapshotKey `json:"key"`
	Removed int               `json:"removed"`
}

func (r unskipResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s: %d id(s) unskipped\n", r.Key, r.Removed)
}

// NewUnskipCommand creates the unskip command.
func NewUnskipCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unskip <team-id> <week-start> <entity-type> <source-id>...",
		Short: "Offer permanently skipped records again on the next cycle",
		Long: `Remove source ids from a snapshot's skipped set. Records are skipped after
the destination rejected them; once the cause is fixed (a missing user
mapping, for example) unskip lets the next cycle push them again.

Example:
  shiftsync unskip team-1 2024-01-08 shifts s-17 s-18`,
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			et, err := model.ParseEntityType(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid entity type", err)
			}
			key := model.SnapshotKey{TeamID: args[0], WeekStart: args[1], EntityType: et}
			if err := key.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid snapshot key", err)
			}

			cp, err := rootOpts.openControl(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cp.Close()

			removed, err := cp.orch.Unskip(cmd.Context(), key, args[3:]...)
			if err != nil {
				return WrapExitError(ExitFailure, "unskip failed", err)
			}
			return out.Success(unskipResult{Key: key, Removed: removed})
		},
	}
}
