package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/store"
)

// TeamInput is the input of a team's TeamSync instance.
type TeamInput struct {
	TeamID string      `json:"teamId"`
	Clear  *ClearInput `json:"clear,omitempty"`
	Cycle  int         `json:"cycle,omitempty"`
}

// TeamResult is the output of a TeamSync instance that stopped on its own.
type TeamResult struct {
	Stopped bool   `json:"stopped"`
	Reason  string `json:"reason,omitempty"`
}

// TeamPlan is the connection and settings snapshot one team cycle runs
// with. It is produced by an activity so a replayed cycle sees the same
// plan even if the configuration changed in between.
type TeamPlan struct {
	Found          bool   `json:"found"`
	Enabled        bool   `json:"enabled"`
	BusinessUnitID string `json:"businessUnitId,omitempty"`
	TimeZone       string `json:"timeZone,omitempty"`
	DraftMode      bool   `json:"draftMode,omitempty"`
	Notify         bool   `json:"notify,omitempty"`

	Entities          []model.EntityType `json:"entities,omitempty"`
	PastWeeks         int                `json:"pastWeeks"`
	FutureWeeks       int                `json:"futureWeeks"`
	StartDayOfWeek    time.Weekday       `json:"startDayOfWeek"`
	Frequency         time.Duration      `json:"frequency"`
	MaxChangesPerWeek int                `json:"maxChangesPerWeek"`
	LeaseDuration     time.Duration      `json:"leaseDuration"`

	ProvisionPollInterval time.Duration `json:"provisionPollInterval"`
	ProvisionMaxAttempts  int           `json:"provisionMaxAttempts"`
}

// EntityInput is the input of an EntitySync instance.
type EntityInput struct {
	TeamID     string           `json:"teamId"`
	EntityType model.EntityType `json:"entityType"`
	Plan       TeamPlan         `json:"plan"`
}

// EntityResult aggregates the weeks of one entity type.
type EntityResult struct {
	EntityType  model.EntityType    `json:"entityType"`
	Total       model.ResultModel   `json:"total"`
	Weeks       []model.ResultModel `json:"weeks"`
	FailedWeeks int                 `json:"failedWeeks,omitempty"`
}

type executionRecord struct {
	TeamID  string                                 `json:"teamId"`
	At      time.Time                              `json:"at"`
	Results map[model.EntityType]model.ResultModel `json:"results"`
}

type shareRequest struct {
	TeamID string    `json:"teamId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Notify bool      `json:"notify"`
}

type scheduleRequest struct {
	TeamID   string `json:"teamId"`
	TimeZone string `json:"timeZone"`
}

// teamSync runs one cycle for a team and continues as new after a
// durable wait, so its history stays bounded. A failed cycle is logged and
// retried by the next one; only termination or an unsubscribed or disabled
// team ends the instance.
func (o *Orchestrator) teamSync(c *engine.Context, in TeamInput) (TeamResult, error) {
	log := c.Logger().With("team", in.TeamID, "cycle", in.Cycle)
	next := TeamInput{TeamID: in.TeamID, Clear: in.Clear, Cycle: in.Cycle + 1}

	plan, err := engine.CallActivity[TeamPlan](c, activityLoadPlan, in.TeamID)
	if err != nil {
		err = fmt.Errorf("load connection: %w", err)
	} else {
		if !plan.Found {
			log.Info("team is not subscribed, stopping")
			return TeamResult{Stopped: true, Reason: "not subscribed"}, nil
		}
		if !plan.Enabled {
			log.Info("team is disabled, stopping")
			return TeamResult{Stopped: true, Reason: "disabled"}, nil
		}
		err = o.teamCycle(c, in, plan, &next)
	}
	if err != nil {
		if errors.Is(err, engine.ErrTerminated) {
			return TeamResult{}, err
		}
		LogErrors(log, "team cycle failed", err)
		if !c.IsReplaying() {
			o.rec.CycleFailed(WorkflowTeam)
		}
	}

	wait := plan.Frequency
	if wait <= 0 {
		wait = o.settings.Frequency
	}
	if err := engine.Sleep(c, wait); err != nil {
		return TeamResult{}, err
	}
	return TeamResult{}, c.ContinueAsNew(next)
}

// teamCycle provisions the schedule, runs a pending clear, syncs every
// entity type and records the outcome. next.Clear is reset once the clear
// has run.
func (o *Orchestrator) teamCycle(c *engine.Context, in TeamInput, plan TeamPlan, next *TeamInput) error {
	log := c.Logger().With("team", in.TeamID, "cycle", in.Cycle)

	if err := provision(c, in.TeamID, plan); err != nil {
		return err
	}

	if in.Clear != nil {
		req := *in.Clear
		req.TeamID = in.TeamID
		if _, err := engine.CallSubWorkflow[ClearResult](c, WorkflowClear, model.ClearInstanceID(in.TeamID), req); err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}
		next.Clear = nil
	}

	futures := make([]*engine.Future[EntityResult], 0, len(plan.Entities))
	for _, et := range plan.Entities {
		futures = append(futures, engine.CallSubWorkflowAsync[EntityResult](c, WorkflowEntity,
			model.EntityInstanceID(in.TeamID, et), EntityInput{TeamID: in.TeamID, EntityType: et, Plan: plan}))
	}
	results, errs := engine.Await(futures)
	if err := errors.Join(errs...); err != nil {
		if errors.Is(err, engine.ErrTerminated) {
			return err
		}
		LogErrors(log, "entity sync failed", err)
	}

	exec := executionRecord{TeamID: in.TeamID, Results: make(map[model.EntityType]model.ResultModel)}
	var total model.ResultModel
	for i, res := range results {
		if errs[i] != nil {
			continue
		}
		exec.Results[res.EntityType] = res.Total
		total.Add(res.Total)
	}

	if total.HasChanges && plan.DraftMode {
		share := shareRequest{TeamID: in.TeamID, Start: total.RangeStart, End: total.RangeEnd, Notify: plan.Notify}
		if _, err := engine.CallActivity[struct{}](c, activityShareSchedule, share); err != nil {
			if errors.Is(err, engine.ErrTerminated) {
				return err
			}
			LogErrors(log, "share schedule failed", err)
		}
	}

	exec.At = engine.Now(c)
	if _, err := engine.CallActivity[struct{}](c, activityRecordExecution, exec); err != nil {
		return fmt.Errorf("record execution: %w", err)
	}

	log.Info("team cycle finished",
		"created", total.Created, "updated", total.Updated, "deleted", total.Deleted,
		"failed", total.Failed, "skipped", total.Skipped, "next_in", plan.Frequency)
	return nil
}

// provision makes sure the destination schedule exists and has finished
// provisioning, polling on a durable timer.
func provision(c *engine.Context, teamID string, plan TeamPlan) error {
	sched, err := engine.CallActivity[model.Schedule](c, activityEnsureSchedule,
		scheduleRequest{TeamID: teamID, TimeZone: plan.TimeZone})
	if err != nil {
		return fmt.Errorf("ensure schedule: %w", err)
	}
	for attempt := 1; !sched.Provisioned(); attempt++ {
		if sched.ProvisionStatus == model.ProvisionFailed {
			return fmt.Errorf("team %s: %w", teamID, ErrProvisionFailed)
		}
		if attempt > plan.ProvisionMaxAttempts {
			return fmt.Errorf("team %s after %d attempts: %w", teamID, plan.ProvisionMaxAttempts, ErrProvisionTimeout)
		}
		if err := engine.Sleep(c, plan.ProvisionPollInterval); err != nil {
			return err
		}
		if sched, err = engine.CallActivity[model.Schedule](c, activityGetSchedule, teamID); err != nil {
			return fmt.Errorf("get schedule: %w", err)
		}
	}
	return nil
}

// entitySync fans out one WeekSync per week of the rolling window. A
// failed week is logged and does not fail the others.
func (o *Orchestrator) entitySync(c *engine.Context, in EntityInput) (EntityResult, error) {
	log := c.Logger().With("team", in.TeamID, "entity", in.EntityType)
	res := EntityResult{EntityType: in.EntityType, Total: model.ResultModel{EntityType: in.EntityType}, Weeks: []model.ResultModel{}}

	loc, err := loadLocation(in.Plan.TimeZone)
	if err != nil {
		return res, err
	}
	weeks := model.WeekRange(engine.Now(c), loc, in.Plan.StartDayOfWeek, in.Plan.PastWeeks, in.Plan.FutureWeeks)

	futures := make([]*engine.Future[model.ResultModel], 0, len(weeks))
	for _, start := range weeks {
		key := model.SnapshotKey{TeamID: in.TeamID, WeekStart: model.WeekKey(start), EntityType: in.EntityType}
		futures = append(futures, engine.CallSubWorkflowAsync[model.ResultModel](c, WorkflowWeek, model.WeekInstanceID(key), WeekInput{
			Key:            key,
			BusinessUnitID: in.Plan.BusinessUnitID,
			TimeZone:       in.Plan.TimeZone,
			MaxChanges:     in.Plan.MaxChangesPerWeek,
			LeaseDuration:  in.Plan.LeaseDuration,
		}))
	}
	weekResults, errs := engine.Await(futures)
	if err := errors.Join(errs...); errors.Is(err, engine.ErrTerminated) {
		return res, err
	}
	for i, wr := range weekResults {
		if errs[i] != nil {
			res.FailedWeeks++
			LogErrors(log, "week sync failed", errs[i], "week", model.WeekKey(weeks[i]))
			continue
		}
		res.Weeks = append(res.Weeks, wr)
		res.Total.Add(wr)
	}
	res.Total.EntityType = in.EntityType
	return res, nil
}

func (o *Orchestrator) loadPlan(ctx context.Context, teamID string) (TeamPlan, error) {
	conn, err := o.store.GetConnection(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return TeamPlan{}, nil
	}
	if err != nil {
		return TeamPlan{}, err
	}
	s := o.settings
	return TeamPlan{
		Found:                 true,
		Enabled:               conn.Enabled,
		BusinessUnitID:        conn.BusinessUnitID,
		TimeZone:              conn.TimeZone,
		DraftMode:             conn.DraftMode,
		Notify:                s.Notify,
		Entities:              append([]model.EntityType(nil), s.Entities...),
		PastWeeks:             s.PastWeeks,
		FutureWeeks:           s.FutureWeeks,
		StartDayOfWeek:        s.StartDayOfWeek,
		Frequency:             s.Frequency,
		MaxChangesPerWeek:     s.MaxChangesPerWeek,
		LeaseDuration:         s.LeaseDuration,
		ProvisionPollInterval: s.ProvisionPollInterval,
		ProvisionMaxAttempts:  s.ProvisionMaxAttempts,
	}, nil
}

func (o *Orchestrator) ensureSchedule(ctx context.Context, req scheduleRequest) (model.Schedule, error) {
	sched, err := o.dest.GetSchedule(ctx, req.TeamID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.Schedule{}, err
	}
	if err == nil && sched.Exists {
		return sched, nil
	}
	o.log.Info("creating schedule", "team", req.TeamID, "time_zone", req.TimeZone)
	if err := o.dest.CreateSchedule(ctx, req.TeamID, req.TimeZone); err != nil {
		return model.Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	return o.dest.GetSchedule(ctx, req.TeamID)
}

func (o *Orchestrator) getSchedule(ctx context.Context, teamID string) (model.Schedule, error) {
	return o.dest.GetSchedule(ctx, teamID)
}

func (o *Orchestrator) shareSchedule(ctx context.Context, req shareRequest) (struct{}, error) {
	o.log.Info("sharing schedule", "team", req.TeamID, "start", req.Start, "end", req.End, "notify", req.Notify)
	return struct{}{}, o.dest.ShareSchedule(ctx, req.TeamID, req.Start, req.End, req.Notify)
}

// recordExecution stores the cycle outcome on the connection. A team
// unsubscribed while the cycle ran is ignored.
func (o *Orchestrator) recordExecution(ctx context.Context, exec executionRecord) (struct{}, error) {
	conn, err := o.store.GetConnection(ctx, exec.TeamID)
	if errors.Is(err, store.ErrNotFound) {
		return struct{}{}, nil
	}
	if err != nil {
		return struct{}{}, err
	}
	if conn.LastExecution == nil {
		conn.LastExecution = make(map[model.EntityType]time.Time)
	}
	if conn.LastResults == nil {
		conn.LastResults = make(map[model.EntityType]model.ResultModel)
	}
	for et, res := range exec.Results {
		conn.LastExecution[et] = exec.At
		conn.LastResults[et] = res
	}
	return struct{}{}, o.store.SaveConnection(ctx, conn)
}
