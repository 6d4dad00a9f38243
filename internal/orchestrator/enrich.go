package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/shiftsync/internal/model"
)

// enrichConcurrency bounds parallel lookups within one enrichment stage.
const enrichConcurrency = 8

// enricher resolves destination-side ids for one week's changed records.
//
// Lookup failures are logged and leave the field empty; the pusher then
// rejects the record with a validation error and it is skipped.
type enricher struct {
	o     *Orchestrator
	team  string
	creds model.Credentials
	known map[string]string
	log   *slog.Logger

	flight  singleflight.Group
	mu      sync.Mutex
	jobs    map[string]model.JobInfo
	reasons map[string]string
}

func (o *Orchestrator) newEnricher(key model.SnapshotKey, creds model.Credentials, known map[string]string) *enricher {
	return &enricher{
		o:       o,
		team:    key.TeamID,
		creds:   creds,
		known:   known,
		log:     o.weekLogger(key),
		jobs:    make(map[string]model.JobInfo),
		reasons: make(map[string]string),
	}
}

// each runs fn for 0..n-1 with bounded parallelism and waits for all.
func (e *enricher) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range n {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// userID maps a WFM employee to the destination user with the same login.
func (e *enricher) userID(ctx context.Context, wfmEmployeeID string) string {
	key := e.team + "|" + wfmEmployeeID
	if id, ok := e.o.users.Get(key); ok {
		return id
	}
	v, err, _ := e.flight.Do("user|"+wfmEmployeeID, func() (any, error) {
		emp, err := e.o.source.GetEmployee(ctx, e.creds, wfmEmployeeID)
		if err != nil {
			return "", err
		}
		id, err := e.o.dest.GetUserIDByLogin(ctx, e.team, emp.LoginName)
		if err != nil {
			return "", err
		}
		e.o.users.Add(key, id)
		return id, nil
	})
	if err != nil {
		e.log.Warn("employee not resolved", "employee", wfmEmployeeID, "error", err)
		return ""
	}
	return v.(string)
}

func (e *enricher) job(ctx context.Context, wfmJobID string) (model.JobInfo, bool) {
	e.mu.Lock()
	job, ok := e.jobs[wfmJobID]
	e.mu.Unlock()
	if ok {
		return job, true
	}
	v, err, _ := e.flight.Do("job|"+wfmJobID, func() (any, error) {
		return e.o.source.GetJob(ctx, e.creds, wfmJobID)
	})
	if err != nil {
		e.log.Warn("job not resolved", "job", wfmJobID, "error", err)
		return model.JobInfo{}, false
	}
	job = v.(model.JobInfo)
	e.mu.Lock()
	e.jobs[wfmJobID] = job
	e.mu.Unlock()
	return job, true
}

func (e *enricher) reasonID(ctx context.Context, code string) string {
	e.mu.Lock()
	id, ok := e.reasons[code]
	e.mu.Unlock()
	if ok {
		return id
	}
	v, err, _ := e.flight.Do("reason|"+code, func() (any, error) {
		return e.o.dest.GetTimeOffReasonID(ctx, e.team, code)
	})
	if err != nil {
		e.log.Warn("time off reason not resolved", "reason", code, "error", err)
		return ""
	}
	id = v.(string)
	e.mu.Lock()
	e.reasons[code] = id
	e.mu.Unlock()
	return id
}

func (e *enricher) groupID(ctx context.Context, department string) string {
	id, err := e.o.groups.resolve(ctx, e.team, department, e.known)
	if err != nil {
		e.log.Warn("scheduling group not resolved", "department", department, "error", err)
		return ""
	}
	return id
}

// Stages run strictly in order: employee, job, scheduling group, group
// membership. Each stage reads fields the previous one filled.

func (e *enricher) resolveEmployees(ctx context.Context, n int, get func(i int) (wfmID string, teamsID *string)) {
	e.each(ctx, n, func(ctx context.Context, i int) {
		wfmID, teamsID := get(i)
		if *teamsID == "" && wfmID != "" {
			*teamsID = e.userID(ctx, wfmID)
		}
	})
}

func (e *enricher) resolveJobsAndGroups(ctx context.Context, recs []*model.Shift) {
	e.each(ctx, len(recs), func(ctx context.Context, i int) {
		s := recs[i]
		if s.DepartmentName != "" || s.WfmJobID == "" {
			return
		}
		if job, ok := e.job(ctx, s.WfmJobID); ok {
			s.JobName = job.Name
			s.DepartmentName = job.DepartmentName
			s.ThemeCode = job.ThemeCode
		}
	})
	e.each(ctx, len(recs), func(ctx context.Context, i int) {
		s := recs[i]
		if s.TeamsSchedulingGroupID == "" && s.DepartmentName != "" {
			s.TeamsSchedulingGroupID = e.groupID(ctx, s.DepartmentName)
		}
	})
}

func enrichShifts(ctx context.Context, e *enricher, recs []*model.Shift) error {
	e.resolveEmployees(ctx, len(recs), func(i int) (string, *string) {
		return recs[i].WfmEmployeeID, &recs[i].TeamsEmployeeID
	})
	e.resolveJobsAndGroups(ctx, recs)

	members := make(map[string]map[string]bool)
	for _, s := range recs {
		if s.TeamsSchedulingGroupID == "" || s.TeamsEmployeeID == "" {
			continue
		}
		if members[s.TeamsSchedulingGroupID] == nil {
			members[s.TeamsSchedulingGroupID] = make(map[string]bool)
		}
		members[s.TeamsSchedulingGroupID][s.TeamsEmployeeID] = true
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
		if err := e.o.groups.addMembers(ctx, e.team, g, users); err != nil {
			return err
		}
	}
	return nil
}

func enrichOpenShifts(ctx context.Context, e *enricher, recs []*model.Shift) error {
	e.resolveJobsAndGroups(ctx, recs)
	return nil
}

func enrichTimeOff(ctx context.Context, e *enricher, recs []*model.TimeOff) error {
	e.resolveEmployees(ctx, len(recs), func(i int) (string, *string) {
		return recs[i].WfmEmployeeID, &recs[i].TeamsEmployeeID
	})
	e.each(ctx, len(recs), func(ctx context.Context, i int) {
		t := recs[i]
		if t.TeamsReasonID == "" && t.ReasonCode != "" {
			t.TeamsReasonID = e.reasonID(ctx, t.ReasonCode)
		}
	})
	return nil
}

func enrichAvailability(ctx context.Context, e *enricher, recs []*model.Availability) error {
	e.resolveEmployees(ctx, len(recs), func(i int) (string, *string) {
		return recs[i].WfmEmployeeID, &recs[i].TeamsEmployeeID
	})
	return nil
}
