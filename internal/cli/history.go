package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shiftsync/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Generation int64
	List       bool
	Limit      int
}

type historyView struct {
	Instance store.Instance       `json:"instance"`
	Events   []store.HistoryEvent `json:"events"`
}

func (h historyView) renderText(w io.Writer) {
	inst := h.Instance
	fmt.Fprintf(w, "Instance:   %s (%s)\n", inst.ID, inst.Name)
	fmt.Fprintf(w, "Status:     %s, generation %d\n", inst.Status, inst.Generation)
	if inst.ParentID != "" {
		fmt.Fprintf(w, "Parent:     %s\n", inst.ParentID)
	}
	if inst.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", inst.Error)
	}
	fmt.Fprintf(w, "Updated:    %s\n", inst.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Events (%d):\n", len(h.Events))
	for _, ev := range h.Events {
		state := "pending"
		switch {
		case ev.Error != "":
			state = "error: " + ev.Error
		case ev.Completed:
			state = "done"
		}
		target := ""
		if ev.Target != "" {
			target = " -> " + ev.Target
		}
		fmt.Fprintf(w, "  %4d %-11s %s%s [%s]\n", ev.Seq, ev.Kind, ev.Name, target, state)
	}
}

type instanceList struct {
	Instances []store.Instance `json:"instances"`
}

func (l instanceList) renderText(w io.Writer) {
	if len(l.Instances) == 0 {
		fmt.Fprintln(w, "no instances")
		return
	}
	for _, inst := range l.Instances {
		fmt.Fprintf(w, "%-48s %-16s %-10s gen=%d\n", inst.ID, inst.Name, inst.Status, inst.Generation)
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <instance-id>",
		Short: "Show the recorded steps of a workflow instance",
		Long: `Show a workflow instance and the history of one of its generations
(the current one by default). With --list the argument is an id prefix
and the matching instances are listed instead.

Examples:
  shiftsync history team-1
  shiftsync history team-1-Shifts-2024-01-08 --format json
  shiftsync history team-1 --list`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args[0])
		},
	}

	cmd.Flags().Int64Var(&opts.Generation, "generation", 0, "generation to show (default current)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list instances whose id starts with the argument")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum instances listed")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, id string) error {
	out := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	ctx := cmd.Context()

	if opts.List {
		insts, err := st.ListInstances(ctx, store.InstanceFilter{Prefix: id, Limit: opts.Limit})
		if err != nil {
			return WrapExitError(ExitFailure, "list instances failed", err)
		}
		return out.Success(instanceList{Instances: insts})
	}

	inst, err := st.GetInstance(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("instance %s not found", id), err)
	}
	gen := opts.Generation
	if gen == 0 {
		gen = inst.Generation
	}
	events, err := st.LoadHistory(ctx, id, gen)
	if err != nil {
		return WrapExitError(ExitFailure, "load history failed", err)
	}
	out.VerboseLog("loaded %d event(s) of generation %d", len(events), gen)
	return out.Success(historyView{Instance: inst, Events: events})
}
