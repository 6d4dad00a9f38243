package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/store"
)

// ErrDisabled is returned when refreshing a team whose connection is disabled.
var ErrDisabled = errors.New("team is disabled")

// Subscription is a request to start syncing a team.
type Subscription struct {
	TeamID         string            `json:"teamId"`
	BusinessUnitID string            `json:"businessUnitId"`
	TimeZone       string            `json:"timeZone"`
	DraftMode      *bool             `json:"draftMode,omitempty"`
	Credentials    model.Credentials `json:"credentials"`
	ClearSchedule  *ClearInput       `json:"clearSchedule,omitempty"`
}

// Validate checks the subscription fields.
func (s Subscription) Validate() error {
	if s.TeamID == "" {
		return errors.New("subscription: team id is required")
	}
	if s.BusinessUnitID == "" {
		return errors.New("subscription: business unit id is required")
	}
	if _, err := loadLocation(s.TimeZone); err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	if s.ClearSchedule != nil {
		req := *s.ClearSchedule
		req.TeamID = s.TeamID
		if err := req.Validate(); err != nil {
			return fmt.Errorf("subscription: %w", err)
		}
	}
	return nil
}

// Subscribe stores the team's connection and credentials and starts its
// TeamSync instance unless one is already running. It reports whether a
// new instance was started.
func (o *Orchestrator) Subscribe(ctx context.Context, sub Subscription) (bool, error) {
	if err := sub.Validate(); err != nil {
		return false, err
	}
	conn, err := o.store.GetConnection(ctx, sub.TeamID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	conn.TeamID = sub.TeamID
	conn.BusinessUnitID = sub.BusinessUnitID
	conn.TimeZone = sub.TimeZone
	conn.Enabled = true
	conn.DraftMode = o.settings.DraftMode
	if sub.DraftMode != nil {
		conn.DraftMode = *sub.DraftMode
	}

	if err := o.secrets.SaveCredentials(ctx, sub.TeamID, sub.Credentials); err != nil {
		return false, fmt.Errorf("save credentials: %w", err)
	}
	if err := o.store.SaveConnection(ctx, conn); err != nil {
		return false, err
	}

	started, err := o.host.TryStartSingleton(ctx, WorkflowTeam, model.TeamInstanceID(sub.TeamID),
		TeamInput{TeamID: sub.TeamID, Clear: sub.ClearSchedule})
	if err != nil {
		return false, err
	}
	o.log.Info("team subscribed", "team", sub.TeamID, "started", started)
	return started, nil
}

// Unsubscribe stops the team's workflows and removes its connection and
// credentials. Snapshots are kept so a later subscription does not
// duplicate records already pushed.
func (o *Orchestrator) Unsubscribe(ctx context.Context, teamID string) error {
	if err := o.Stop(ctx, teamID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := o.store.DeleteConnection(ctx, teamID); err != nil {
		return err
	}
	o.groups.forget(teamID)
	o.log.Info("team unsubscribed", "team", teamID)
	return nil
}

// Stop terminates the team's workflow tree. The connection stays, so
// Refresh can restart it.
func (o *Orchestrator) Stop(ctx context.Context, teamID string) error {
	return o.host.Terminate(ctx, model.TeamInstanceID(teamID), "stopped")
}

// Refresh restarts the team's workflow so a cycle runs immediately.
func (o *Orchestrator) Refresh(ctx context.Context, teamID string) error {
	conn, err := o.store.GetConnection(ctx, teamID)
	if err != nil {
		return err
	}
	if !conn.Enabled {
		return fmt.Errorf("refresh %s: %w", teamID, ErrDisabled)
	}
	if err := o.host.Terminate(ctx, model.TeamInstanceID(teamID), "refresh"); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := o.host.TryStartSingleton(ctx, WorkflowTeam, model.TeamInstanceID(teamID), TeamInput{TeamID: teamID}); err != nil {
		return err
	}
	o.log.Info("team refreshed", "team", teamID)
	return nil
}

// ScheduleAction starts a DeferredAction instance and returns its id.
func (o *Orchestrator) ScheduleAction(ctx context.Context, in DeferredInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	if _, err := o.store.GetConnection(ctx, in.TeamID); err != nil {
		return "", err
	}
	return o.host.StartNew(ctx, WorkflowDeferred, "", in)
}

// StartClear starts a standalone ClearSchedule instance for the team. It
// reports false if one is already running.
func (o *Orchestrator) StartClear(ctx context.Context, in ClearInput) (bool, error) {
	if err := in.Validate(); err != nil {
		return false, err
	}
	return o.host.TryStartSingleton(ctx, WorkflowClear, model.ClearInstanceID(in.TeamID), in)
}

// Unskip removes source ids from a snapshot's skipped set so the next
// cycle offers them again. It returns how many ids were removed.
func (o *Orchestrator) Unskip(ctx context.Context, key model.SnapshotKey, ids ...string) (int, error) {
	raw, token, err := o.store.LoadSnapshotWithLease(ctx, key, "unskip", o.settings.LeaseDuration)
	if err != nil {
		return 0, err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := make([]string, 0, len(raw.Skipped))
	for _, id := range raw.Skipped {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	removed := len(raw.Skipped) - len(kept)
	if removed == 0 {
		return 0, o.store.ReleaseLease(ctx, key, token)
	}
	raw.Skipped = kept
	if err := o.store.SaveSnapshotWithLease(ctx, key, token, raw); err != nil {
		return 0, err
	}
	o.log.Info("ids unskipped", "snapshot", key.String(), "removed", removed)
	return removed, nil
}

// TeamHealth is the admin view of one team.
type TeamHealth struct {
	TeamID        string                                 `json:"teamId"`
	Subscribed    bool                                   `json:"subscribed"`
	Enabled       bool                                   `json:"enabled"`
	DraftMode     bool                                   `json:"draftMode"`
	Status        store.Status                           `json:"status,omitempty"`
	Error         string                                 `json:"error,omitempty"`
	Generation    int64                                  `json:"generation,omitempty"`
	Entities      map[model.EntityType]store.Status      `json:"entities,omitempty"`
	LastExecution map[model.EntityType]time.Time         `json:"lastExecution,omitempty"`
	LastResults   map[model.EntityType]model.ResultModel `json:"lastResults,omitempty"`
	Snapshots     int                                    `json:"snapshots"`
	SkippedIDs    int                                    `json:"skippedIds"`
}

// Health reports the team's connection, workflow status and last results.
func (o *Orchestrator) Health(ctx context.Context, teamID string) (TeamHealth, error) {
	h := TeamHealth{TeamID: teamID}
	conn, err := o.store.GetConnection(ctx, teamID)
	switch {
	case err == nil:
		h.Subscribed = true
		h.Enabled = conn.Enabled
		h.DraftMode = conn.DraftMode
		h.LastResults = conn.LastResults
		h.LastExecution = conn.LastExecution
	case !errors.Is(err, store.ErrNotFound):
		return h, err
	}

	inst, err := o.store.GetInstance(ctx, model.TeamInstanceID(teamID))
	switch {
	case err == nil:
		h.Status = inst.Status
		h.Error = inst.Error
		h.Generation = inst.Generation
	case !errors.Is(err, store.ErrNotFound):
		return h, err
	}
	if !h.Subscribed && h.Status == "" {
		return h, fmt.Errorf("team %s: %w", teamID, store.ErrNotFound)
	}

	for _, et := range model.AllEntityTypes {
		child, err := o.store.GetInstance(ctx, model.EntityInstanceID(teamID, et))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return h, err
		}
		if h.Entities == nil {
			h.Entities = make(map[model.EntityType]store.Status)
		}
		h.Entities[et] = child.Status
	}

	snaps, err := o.store.ListTeamSnapshots(ctx, teamID)
	if err != nil {
		return h, err
	}
	h.Snapshots = len(snaps)
	for _, s := range snaps {
		h.SkippedIDs += s.SkippedCount
	}
	return h, nil
}
