package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/shiftsync/internal/delta"
	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/store"
)

// WeekInput is the input of one WeekSync instance.
type WeekInput struct {
	Key            model.SnapshotKey `json:"key"`
	BusinessUnitID string            `json:"businessUnitId"`
	TimeZone       string            `json:"timeZone"`
	MaxChanges     int               `json:"maxChanges"`
	LeaseDuration  time.Duration     `json:"leaseDuration"`
}

// window returns [start, end) of the week in the team's time zone.
func (in WeekInput) window() (time.Time, time.Time, error) {
	loc, err := loadLocation(in.TimeZone)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := model.ParseWeekKey(in.Key.WeekStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 7), nil
}

func (in WeekInput) query() (model.WeekQuery, error) {
	start, end, err := in.window()
	if err != nil {
		return model.WeekQuery{}, err
	}
	return model.WeekQuery{
		BusinessUnitID: in.BusinessUnitID,
		WeekStart:      start,
		WeekEnd:        end,
		TimeZone:       in.TimeZone,
	}, nil
}

type loadedSnapshot[T model.Keyed] struct {
	Snapshot model.SnapshotModel[T] `json:"snapshot"`
	Token    string                 `json:"token,omitempty"`
	Held     bool                   `json:"held,omitempty"`
}

// weekDelta carries a delta between the week pipeline steps.
type weekDelta[T any] struct {
	Week   WeekInput         `json:"week"`
	Token  string            `json:"token,omitempty"`
	Delta  *delta.Result[T]  `json:"delta"`
	Groups map[string]string `json:"groups,omitempty"`
}

type persistOutcome struct {
	LeaseLost bool `json:"leaseLost,omitempty"`
}

type leaseRef struct {
	Key   model.SnapshotKey `json:"key"`
	Token string            `json:"token"`
}

func (o *Orchestrator) weekSync(c *engine.Context, in WeekInput) (model.ResultModel, error) {
	switch in.Key.EntityType {
	case model.EntityShifts, model.EntityOpenShifts:
		return runWeek[*model.Shift](c, o, in)
	case model.EntityTimeOff:
		return runWeek[*model.TimeOff](c, o, in)
	case model.EntityAvailability:
		return runWeek[*model.Availability](c, o, in)
	}
	return model.ResultModel{}, fmt.Errorf("week sync: unsupported entity type %q", in.Key.EntityType)
}

// runWeek is the week state machine:
//
//	FetchWeek -> LoadSnapshot -> delta -> (no changes: release, end)
//	  -> cap -> Enrich -> Apply -> PersistSnapshot -> end
//
// A fatal error leaves the snapshot untouched, so the whole delta is
// offered again next cycle.
func runWeek[T record[T]](c *engine.Context, o *Orchestrator, in WeekInput) (model.ResultModel, error) {
	et := in.Key.EntityType
	log := c.Logger().With("team", in.Key.TeamID, "entity", et, "week", in.Key.WeekStart)
	res := model.ResultModel{EntityType: et, WeekStart: in.Key.WeekStart}
	started := engine.Now(c)

	records, err := engine.CallActivity[[]T](c, stepName(stepFetch, et), in)
	if err != nil {
		return res, fmt.Errorf("fetch week %s: %w", in.Key, err)
	}

	loaded, err := engine.CallActivity[loadedSnapshot[T]](c, stepName(stepLoad, et), in)
	if err != nil {
		return res, fmt.Errorf("load snapshot %s: %w", in.Key, err)
	}
	if loaded.Held {
		log.Warn("snapshot lease held by another writer, week skipped")
		res.Aborted = true
		return res, nil
	}

	d := delta.ComputeExcluding(loaded.Snapshot.Tracked, records, loaded.Snapshot.SkippedSet())
	if !d.HasChanges() {
		if err := releaseLease(c, in.Key, loaded.Token); err != nil {
			return res, err
		}
		o.observeWeek(c, et, started)
		return res, nil
	}

	if res.Truncated = d.Truncate(in.MaxChanges); res.Truncated {
		log.Info("delta truncated, remainder deferred to next cycle", "max_changes", in.MaxChanges)
	}

	step := weekDelta[T]{Week: in, Token: loaded.Token, Delta: d, Groups: knownGroups(loaded.Snapshot.Tracked)}
	if step.Delta, err = engine.CallActivity[*delta.Result[T]](c, stepName(stepEnrich, et), step); err != nil {
		return res, abandon(c, in.Key, loaded.Token, fmt.Errorf("enrich %s: %w", in.Key, err))
	}
	step.Groups = nil
	if step.Delta, err = engine.CallActivity[*delta.Result[T]](c, stepName(stepApply, et), step); err != nil {
		return res, abandon(c, in.Key, loaded.Token, fmt.Errorf("apply %s: %w", in.Key, err))
	}

	out, err := engine.CallActivity[persistOutcome](c, stepName(stepPersist, et), step)
	if err != nil {
		return res, abandon(c, in.Key, loaded.Token, fmt.Errorf("persist snapshot %s: %w", in.Key, err))
	}
	if out.LeaseLost {
		log.Warn("snapshot lease lost, outcome not persisted")
		res.Aborted = true
	}

	applied := step.Delta
	res.Created = len(applied.Created)
	res.Updated = len(applied.Updated)
	res.Deleted = len(applied.Deleted)
	res.Failed = len(applied.Failed)
	res.Skipped = len(applied.Skipped)
	res.HasChanges = true
	if start, end, err := in.window(); err == nil {
		res.RangeStart, res.RangeEnd = start.UTC(), end.UTC()
	}
	log.Info("week synced",
		"created", res.Created, "updated", res.Updated, "deleted", res.Deleted,
		"failed", res.Failed, "skipped", res.Skipped)
	o.observeWeek(c, et, started)
	return res, nil
}

func (o *Orchestrator) observeWeek(c *engine.Context, et model.EntityType, started time.Time) {
	finished := engine.Now(c)
	if !c.IsReplaying() {
		o.rec.WeekSynced(et, finished.Sub(started))
	}
}

func releaseLease(c *engine.Context, key model.SnapshotKey, token string) error {
	if token == store.NoLease {
		return nil
	}
	if _, err := engine.CallActivity[struct{}](c, activityReleaseLease, leaseRef{Key: key, Token: token}); err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}

// abandon releases the lease of a failed week and returns cause.
func abandon(c *engine.Context, key model.SnapshotKey, token string, cause error) error {
	if errors.Is(cause, engine.ErrTerminated) {
		return cause
	}
	if err := releaseLease(c, key, token); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// knownGroups maps normalised department names to the scheduling groups
// already resolved for tracked shifts.
func knownGroups[T any](tracked []T) map[string]string {
	var known map[string]string
	for _, rec := range tracked {
		s, ok := any(rec).(*model.Shift)
		if !ok {
			return nil
		}
		if s.DepartmentName == "" || s.TeamsSchedulingGroupID == "" {
			continue
		}
		if known == nil {
			known = make(map[string]string)
		}
		known[model.NormalizeName(s.DepartmentName)] = s.TeamsSchedulingGroupID
	}
	return known
}

func (o *Orchestrator) weekLogger(key model.SnapshotKey) *slog.Logger {
	return o.log.With("team", key.TeamID, "entity", key.EntityType, "week", key.WeekStart)
}

func fetchWeek[T record[T]](ctx context.Context, o *Orchestrator, k kind[T], in WeekInput) ([]T, error) {
	creds, err := o.credentials(ctx, in.Key.TeamID)
	if err != nil {
		return nil, err
	}
	q, err := in.query()
	if err != nil {
		return nil, err
	}
	recs, err := k.fetch(ctx, o.source, creds, q)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		rec.Canonicalize()
	}
	o.weekLogger(in.Key).Debug("week fetched", "records", len(recs))
	return recs, nil
}

// loadSnapshot takes the week's snapshot lease on behalf of the calling
// week instance.
func loadSnapshot[T record[T]](ctx context.Context, o *Orchestrator, in WeekInput) (loadedSnapshot[T], error) {
	owner := model.WeekInstanceID(in.Key)
	if info, ok := engine.ActivityInfoFrom(ctx); ok {
		owner = info.InstanceID
	}
	raw, token, err := o.store.LoadSnapshotWithLease(ctx, in.Key, owner, in.LeaseDuration)
	if errors.Is(err, store.ErrLeaseHeld) {
		return loadedSnapshot[T]{Held: true}, nil
	}
	if err != nil {
		return loadedSnapshot[T]{}, err
	}
	snap, err := model.DecodeSnapshot[T](raw)
	if err != nil {
		if rerr := o.store.ReleaseLease(ctx, in.Key, token); rerr != nil {
			o.weekLogger(in.Key).Warn("release lease after decode failure", "error", rerr)
		}
		return loadedSnapshot[T]{}, fmt.Errorf("snapshot %s: %w", in.Key, err)
	}
	return loadedSnapshot[T]{Snapshot: snap, Token: token}, nil
}

func enrichWeek[T record[T]](ctx context.Context, o *Orchestrator, k kind[T], in weekDelta[T]) (*delta.Result[T], error) {
	creds, err := o.credentials(ctx, in.Week.Key.TeamID)
	if err != nil {
		return nil, err
	}
	e := o.newEnricher(in.Week.Key, creds, in.Groups)
	recs := make([]T, 0, len(in.Delta.Created)+len(in.Delta.Updated))
	recs = append(recs, in.Delta.Created...)
	recs = append(recs, in.Delta.Updated...)
	if err := k.enrich(ctx, e, recs); err != nil {
		return nil, err
	}
	return in.Delta, nil
}

func applyWeek[T record[T]](ctx context.Context, o *Orchestrator, k kind[T], in weekDelta[T]) (*delta.Result[T], error) {
	log := o.weekLogger(in.Week.Key)
	r, itemErrs := delta.Apply(ctx, in.Delta, k.pusher(o.dest, in.Week.Key.TeamID),
		delta.WithConcurrency(o.settings.ApplyConcurrency))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, ie := range itemErrs {
		if ie.Outcome == delta.OutcomeSkipped {
			log.Warn("record skipped", "record", ie.Key, "op", ie.Op, "error", ie.Err)
			continue
		}
		log.Error("record failed", "record", ie.Key, "op", ie.Op, "error", ie.Err)
	}
	o.rec.ItemsApplied(k.typ, delta.OutcomeApplied, r.Len())
	o.rec.ItemsApplied(k.typ, delta.OutcomeSkipped, len(r.Skipped))
	o.rec.ItemsApplied(k.typ, delta.OutcomeFailed, len(r.Failed))
	return r, nil
}

// persistWeek merges the applied delta into the stored snapshot. Failed
// records are left as they were, so the next delta offers them again.
func persistWeek[T record[T]](ctx context.Context, o *Orchestrator, in weekDelta[T]) (persistOutcome, error) {
	raw, err := o.store.LoadSnapshot(ctx, in.Week.Key)
	if err != nil {
		return persistOutcome{}, err
	}
	snap, err := model.DecodeSnapshot[T](raw)
	if err != nil {
		return persistOutcome{}, fmt.Errorf("snapshot %s: %w", in.Week.Key, err)
	}
	d := in.Delta
	upserted := make([]T, 0, len(d.Created)+len(d.Updated))
	upserted = append(upserted, d.Created...)
	upserted = append(upserted, d.Updated...)
	snap.Merge(upserted, d.Deleted, d.Skipped)

	enc, err := snap.Encode()
	if err != nil {
		return persistOutcome{}, err
	}
	err = o.store.SaveSnapshotWithLease(ctx, in.Week.Key, in.Token, enc)
	if errors.Is(err, store.ErrLeaseLost) {
		return persistOutcome{LeaseLost: true}, nil
	}
	if err != nil {
		return persistOutcome{}, err
	}
	return persistOutcome{}, nil
}

func (o *Orchestrator) releaseLease(ctx context.Context, ref leaseRef) (struct{}, error) {
	return struct{}{}, o.store.ReleaseLease(ctx, ref.Key, ref.Token)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", name, err)
	}
	return loc, nil
}
