package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
)

// clearChunkSize bounds the range one ClearScheduleChunk activity covers.
const clearChunkSize = 24 * time.Hour

// clearableEntities are the entity types ClearSchedule removes by default.
var clearableEntities = []model.EntityType{model.EntityShifts, model.EntityOpenShifts, model.EntityTimeOff}

// ClearInput is the input of a ClearSchedule instance. Start and End are
// UTC; End is exclusive.
type ClearInput struct {
	TeamID         string             `json:"teamId"`
	Start          time.Time          `json:"start"`
	End            time.Time          `json:"end"`
	Entities       []model.EntityType `json:"entities,omitempty"`
	ClearGroups    bool               `json:"clearGroups,omitempty"`
	ClearSnapshots bool               `json:"clearSnapshots,omitempty"`
	Notify         bool               `json:"notify,omitempty"`
}

// Validate checks the range and entity types.
func (in ClearInput) Validate() error {
	if in.TeamID == "" {
		return errors.New("clear schedule: team id is required")
	}
	if !in.End.After(in.Start) {
		return fmt.Errorf("clear schedule: end %s is not after start %s", in.End, in.Start)
	}
	for _, et := range in.Entities {
		if !slices.Contains(clearableEntities, et) {
			return fmt.Errorf("clear schedule: entity type %s cannot be cleared", et)
		}
	}
	return nil
}

func (in ClearInput) entities() []model.EntityType {
	if len(in.Entities) == 0 {
		return clearableEntities
	}
	return in.Entities
}

// ClearResult reports what a ClearSchedule instance removed.
type ClearResult struct {
	Deleted          int   `json:"deleted"`
	Chunks           int   `json:"chunks"`
	GroupsCleared    int   `json:"groupsCleared,omitempty"`
	SnapshotsCleared int64 `json:"snapshotsCleared,omitempty"`
}

type clearChunk struct {
	TeamID     string           `json:"teamId"`
	EntityType model.EntityType `json:"entityType"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
}

// clearSchedule deletes a range of the destination schedule in day-sized
// chunks, then sweeps the whole range once more, extended by a day, to
// catch records that cross midnight.
func (o *Orchestrator) clearSchedule(c *engine.Context, in ClearInput) (ClearResult, error) {
	log := c.Logger().With("team", in.TeamID)
	var res ClearResult
	if err := in.Validate(); err != nil {
		return res, err
	}
	entities := in.entities()

	chunks := model.DayChunks(in.Start.UTC(), in.End.UTC(), clearChunkSize)
	futures := make([]*engine.Future[int], 0, len(chunks)*len(entities))
	for _, chunk := range chunks {
		for _, et := range entities {
			futures = append(futures, engine.CallActivityAsync[int](c, activityClearChunk,
				clearChunk{TeamID: in.TeamID, EntityType: et, Start: chunk[0], End: chunk[1]}))
		}
	}
	counts, errs := engine.Await(futures)
	if err := errors.Join(errs...); err != nil {
		return res, fmt.Errorf("clear chunks: %w", err)
	}
	res.Chunks = len(chunks)
	for _, n := range counts {
		res.Deleted += n
	}

	for _, et := range entities {
		n, err := engine.CallActivity[int](c, activityClearChunk,
			clearChunk{TeamID: in.TeamID, EntityType: et, Start: in.Start.UTC(), End: in.End.UTC().Add(clearChunkSize)})
		if err != nil {
			return res, fmt.Errorf("clear final pass: %w", err)
		}
		res.Deleted += n
	}

	share := shareRequest{TeamID: in.TeamID, Start: in.Start.UTC(), End: in.End.UTC(), Notify: in.Notify}
	if _, err := engine.CallActivity[struct{}](c, activityShareSchedule, share); err != nil {
		return res, fmt.Errorf("share cleared schedule: %w", err)
	}

	if in.ClearGroups {
		n, err := engine.CallActivity[int](c, activityClearGroups, in)
		if err != nil {
			return res, fmt.Errorf("clear groups: %w", err)
		}
		res.GroupsCleared = n
	}
	if in.ClearSnapshots {
		n, err := engine.CallActivity[int64](c, activityClearSnapshots, in)
		if err != nil {
			return res, fmt.Errorf("clear snapshots: %w", err)
		}
		res.SnapshotsCleared = n
	}

	log.Info("schedule cleared", "start", in.Start, "end", in.End, "deleted", res.Deleted,
		"groups", res.GroupsCleared, "snapshots", res.SnapshotsCleared)
	return res, nil
}

func (o *Orchestrator) clearChunk(ctx context.Context, in clearChunk) (int, error) {
	n, err := o.dest.ClearSchedule(ctx, in.TeamID, in.EntityType, in.Start, in.End)
	if err != nil {
		return 0, fmt.Errorf("clear %s %s..%s: %w", in.EntityType, in.Start.Format(time.RFC3339), in.End.Format(time.RFC3339), err)
	}
	return n, nil
}

// snapshotRange returns the inclusive week-key range of snapshots that
// overlap [start, end).
func snapshotRange(start, end time.Time) (string, string) {
	return model.WeekKey(start.AddDate(0, 0, -6)), model.WeekKey(end.Add(-time.Nanosecond))
}

// clearGroups removes the employees of tracked shifts in the range from
// the scheduling groups they were added to. It returns the number of
// groups touched.
func (o *Orchestrator) clearGroups(ctx context.Context, in ClearInput) (int, error) {
	from, to := snapshotRange(in.Start, in.End)
	infos, err := o.store.ListTeamSnapshots(ctx, in.TeamID)
	if err != nil {
		return 0, err
	}

	members := make(map[string]map[string]bool)
	for _, info := range infos {
		key := info.Key
		if key.EntityType != model.EntityShifts || key.WeekStart < from || key.WeekStart > to {
			continue
		}
		raw, err := o.store.LoadSnapshot(ctx, key)
		if err != nil {
			return 0, err
		}
		snap, err := model.DecodeSnapshot[*model.Shift](raw)
		if err != nil {
			return 0, fmt.Errorf("snapshot %s: %w", key, err)
		}
		for _, s := range snap.Tracked {
			if s.TeamsSchedulingGroupID == "" || s.TeamsEmployeeID == "" {
				continue
			}
			if members[s.TeamsSchedulingGroupID] == nil {
				members[s.TeamsSchedulingGroupID] = make(map[string]bool)
			}
			members[s.TeamsSchedulingGroupID][s.TeamsEmployeeID] = true
		}
	}

	groups := make([]string, 0, len(members))
	for g := range members {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		users := make([]string, 0, len(members[g]))
		for u := range members[g] {
			users = append(users, u)
		}
		sort.Strings(users)
		if err := o.dest.RemoveUsersFromSchedulingGroup(ctx, in.TeamID, g, users); err != nil {
			return 0, fmt.Errorf("remove users from scheduling group %s: %w", g, err)
		}
	}
	o.groups.forget(in.TeamID)
	return len(groups), nil
}

// clearSnapshots deletes the range's snapshots of the cleared entity
// types. Other snapshots of the team are kept.
func (o *Orchestrator) clearSnapshots(ctx context.Context, in ClearInput) (int64, error) {
	from, to := snapshotRange(in.Start, in.End)
	infos, err := o.store.ListTeamSnapshots(ctx, in.TeamID)
	if err != nil {
		return 0, err
	}
	entities := in.entities()
	var n int64
	for _, info := range infos {
		key := info.Key
		if key.WeekStart < from || key.WeekStart > to || !slices.Contains(entities, key.EntityType) {
			continue
		}
		if err := o.store.DeleteSnapshot(ctx, key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
