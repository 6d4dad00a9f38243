package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/store"
)

// SubscribeOptions holds flags for the subscribe command.
type SubscribeOptions struct {
	*RootOptions
	BusinessUnit string
	TimeZone     string
	Draft        bool
	BaseURL      string
	Username     string
	Password     string
	ClearFrom    string
	ClearTo      string
}

type teamResult struct {
	TeamID  string `json:"teamId"`
	Action  string `json:"action"`
	Started *bool  `json:"started,omitempty"`
}

func (r teamResult) renderText(w io.Writer) {
	switch {
	case r.Started == nil:
		fmt.Fprintf(w, "team %s: %s\n", r.TeamID, r.Action)
	case *r.Started:
		fmt.Fprintf(w, "team %s: %s, workflow started\n", r.TeamID, r.Action)
	default:
		fmt.Fprintf(w, "team %s: %s, workflow already running\n", r.TeamID, r.Action)
	}
}

// NewSubscribeCommand creates the subscribe command.
func NewSubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subscribe <team-id>",
		Short: "Subscribe a team and start its sync workflow",
		Long: `Store the team's connection and WFM credentials and start its sync
workflow. A running workflow is left alone.

Example:
  shiftsync subscribe team-1 --business-unit bu-1 --time-zone Europe/London \
    --username svc --password secret --draft`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.BusinessUnit, "business-unit", "", "WFM business unit id (required)")
	cmd.Flags().StringVar(&opts.TimeZone, "time-zone", "UTC", "IANA time zone of the team")
	cmd.Flags().BoolVar(&opts.Draft, "draft", false, "keep pushed records unshared (defaults to sync.draft_mode)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "WFM base URL")
	cmd.Flags().StringVar(&opts.Username, "username", "", "WFM user name")
	cmd.Flags().StringVar(&opts.Password, "password", "", "WFM password")
	cmd.Flags().StringVar(&opts.ClearFrom, "clear-from", "", "clear the destination schedule from this date (yyyy-mm-dd) before the first sync")
	cmd.Flags().StringVar(&opts.ClearTo, "clear-to", "", "end date (exclusive) of the initial clear")
	_ = cmd.MarkFlagRequired("business-unit")
	cmd.MarkFlagsRequiredTogether("clear-from", "clear-to")

	return cmd
}

func runSubscribe(cmd *cobra.Command, opts *SubscribeOptions, teamID string) error {
	out := opts.formatter(cmd)
	sub := orchestrator.Subscription{
		TeamID:         teamID,
		BusinessUnitID: opts.BusinessUnit,
		TimeZone:       opts.TimeZone,
		Credentials:    model.Credentials{BaseURL: opts.BaseURL, Username: opts.Username, Password: opts.Password},
	}
	if cmd.Flags().Changed("draft") {
		sub.DraftMode = &opts.Draft
	}
	if opts.ClearFrom != "" {
		start, end, err := parseRange(opts.ClearFrom, opts.ClearTo)
		if err != nil {
			return err
		}
		sub.ClearSchedule = &orchestrator.ClearInput{TeamID: teamID, Start: start, End: end}
	}
	if err := sub.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid subscription", err)
	}

	cp, err := opts.openControl(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cp.Close()

	started, err := cp.orch.Subscribe(cmd.Context(), sub)
	if err != nil {
		return WrapExitError(ExitFailure, "subscribe failed", err)
	}
	return out.Success(teamResult{TeamID: teamID, Action: "subscribed", Started: &started})
}

// NewUnsubscribeCommand creates the unsubscribe command.
func NewUnsubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <team-id>",
		Short: "Stop a team's workflows and remove its connection",
		Long: `Terminate the team's workflows and delete its connection and credentials.
Snapshots are kept, so subscribing again does not duplicate pushed records.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return teamControl(cmd, rootOpts, args[0], "unsubscribed", (*orchestrator.Orchestrator).Unsubscribe)
		},
	}
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <team-id>",
		Short: "Restart a team's workflow so a cycle runs now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return teamControl(cmd, rootOpts, args[0], "refreshed", (*orchestrator.Orchestrator).Refresh)
		},
	}
}

// NewStopCommand creates the stop command.
func NewStopCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <team-id>",
		Short: "Terminate a team's workflow tree, keeping its connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return teamControl(cmd, rootOpts, args[0], "stopped", (*orchestrator.Orchestrator).Stop)
		},
	}
}

func teamControl(cmd *cobra.Command, opts *RootOptions, teamID, action string,
	op func(*orchestrator.Orchestrator, context.Context, string) error) error {
	out := opts.formatter(cmd)
	cp, err := opts.openControl(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cp.Close()

	if err := op(cp.orch, cmd.Context(), teamID); err != nil {
		return controlError(action, teamID, err)
	}
	return out.Success(teamResult{TeamID: teamID, Action: action})
}

func controlError(action, teamID string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return WrapExitError(ExitFailure, fmt.Sprintf("team %s not found", teamID), err)
	case errors.Is(err, orchestrator.ErrDisabled):
		return WrapExitError(ExitFailure, fmt.Sprintf("team %s is disabled", teamID), err)
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("%s %s failed", action, teamID), err)
}

type healthView struct {
	orchestrator.TeamHealth
}

func (h healthView) renderText(w io.Writer) {
	fmt.Fprintf(w, "Team:        %s\n", h.TeamID)
	fmt.Fprintf(w, "Subscribed:  %t (enabled %t, draft %t)\n", h.Subscribed, h.Enabled, h.DraftMode)
	if h.Status != "" {
		fmt.Fprintf(w, "Workflow:    %s (generation %d)\n", h.Status, h.Generation)
	}
	if h.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", h.Error)
	}
	fmt.Fprintf(w, "Snapshots:   %d (%d skipped ids)\n", h.Snapshots, h.SkippedIDs)

	entities := make([]model.EntityType, 0, len(h.LastResults))
	for et := range h.LastResults {
		entities = append(entities, et)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	for _, et := range entities {
		r := h.LastResults[et]
		fmt.Fprintf(w, "  %-13s %-10s created=%d updated=%d deleted=%d failed=%d skipped=%d last=%s\n",
			et, h.Entities[et], r.Created, r.Updated, r.Deleted, r.Failed, r.Skipped,
			h.LastExecution[et].Format(time.RFC3339))
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status <team-id>",
		Aliases: []string{"health"},
		Short:   "Show a team's connection, workflow status and last results",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cp, err := rootOpts.openControl(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cp.Close()

			h, err := cp.orch.Health(cmd.Context(), args[0])
			if err != nil {
				return controlError("status", args[0], err)
			}
			return out.Success(healthView{h})
		},
	}
}

// parseRange parses a yyyy-mm-dd range as UTC midnights.
func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(model.DateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, WrapExitError(ExitCommandError, "invalid start date", err)
	}
	end, err := time.Parse(model.DateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, WrapExitError(ExitCommandError, "invalid end date", err)
	}
	return start, end, nil
}
