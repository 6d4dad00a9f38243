package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
)

// Source operation names for fault injection.
const (
	OpListShifts       = "ListWeekShifts"
	OpListOpenShifts   = "ListWeekOpenShifts"
	OpListTimeOff      = "ListWeekTimeOff"
	OpListAvailability = "ListWeekAvailability"
	OpGetEmployee      = "GetEmployee"
	OpGetJob           = "GetJob"
)

// Source is an in-memory WFM backend. Records are stored per business
// unit; reads return copies.
type Source struct {
	Faults

	mu           sync.Mutex
	shifts       map[string][]*model.Shift
	openShifts   map[string][]*model.Shift
	timeOff      map[string][]*model.TimeOff
	availability map[string][]*model.Availability
	employees    map[string]model.Employee
	jobs         map[string]model.JobInfo
	calls        map[string]int
}

var _ orchestrator.Source = (*Source)(nil)

// NewSource creates an empty source.
func NewSource() *Source {
	return &Source{
		shifts:       make(map[string][]*model.Shift),
		openShifts:   make(map[string][]*model.Shift),
		timeOff:      make(map[string][]*model.TimeOff),
		availability: make(map[string][]*model.Availability),
		employees:    make(map[string]model.Employee),
		jobs:         make(map[string]model.JobInfo),
		calls:        make(map[string]int),
	}
}

// SetShifts replaces the shifts of a business unit.
func (s *Source) SetShifts(bu string, shifts ...*model.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts[bu] = cloneAll(shifts, cloneShift)
}

// SetOpenShifts replaces the open shifts of a business unit.
func (s *Source) SetOpenShifts(bu string, shifts ...*model.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openShifts[bu] = cloneAll(shifts, cloneShift)
}

// SetTimeOff replaces the time off of a business unit.
func (s *Source) SetTimeOff(bu string, entries ...*model.TimeOff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeOff[bu] = cloneAll(entries, cloneTimeOff)
}

// SetAvailability replaces the availability of a business unit.
func (s *Source) SetAvailability(bu string, entries ...*model.Availability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[bu] = cloneAll(entries, cloneAvailability)
}

// AddEmployee registers an employee.
func (s *Source) AddEmployee(e model.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.WfmEmployeeID] = e
}

// AddJob registers a job.
func (s *Source) AddJob(j model.JobInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.WfmJobID] = j
}

// Calls returns how many times op was called.
func (s *Source) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Source) count(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *Source) ListWeekShifts(ctx context.Context, _ model.Credentials, q model.WeekQuery) ([]*model.Shift, error) {
	return listWeek(s, OpListShifts, q, s.shifts, cloneShift, func(r *model.Shift) bool { return inWeek(q, r.StartDate) })
}

func (s *Source) ListWeekOpenShifts(ctx context.Context, _ model.Credentials, q model.WeekQuery) ([]*model.Shift, error) {
	return listWeek(s, OpListOpenShifts, q, s.openShifts, cloneShift, func(r *model.Shift) bool { return inWeek(q, r.StartDate) })
}

func (s *Source) ListWeekTimeOff(ctx context.Context, _ model.Credentials, q model.WeekQuery) ([]*model.TimeOff, error) {
	return listWeek(s, OpListTimeOff, q, s.timeOff, cloneTimeOff, func(r *model.TimeOff) bool {
		return r.StartDate.Before(q.WeekEnd) && r.EndDate.After(q.WeekStart)
	})
}

// ListWeekAvailability returns every availability of the business unit;
// availability is recurring, so each week sees the same records.
func (s *Source) ListWeekAvailability(ctx context.Context, _ model.Credentials, q model.WeekQuery) ([]*model.Availability, error) {
	return listWeek(s, OpListAvailability, q, s.availability, cloneAvailability, func(*model.Availability) bool { return true })
}

func (s *Source) GetEmployee(ctx context.Context, _ model.Credentials, wfmEmployeeID string) (model.Employee, error) {
	s.count(OpGetEmployee)
	if err := s.check(OpGetEmployee, wfmEmployeeID); err != nil {
		return model.Employee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[wfmEmployeeID]
	if !ok {
		return model.Employee{}, fmt.Errorf("employee %s: %w", wfmEmployeeID, orchestrator.ErrNotFound)
	}
	return e, nil
}

func (s *Source) GetJob(ctx context.Context, _ model.Credentials, wfmJobID string) (model.JobInfo, error) {
	s.count(OpGetJob)
	if err := s.check(OpGetJob, wfmJobID); err != nil {
		return model.JobInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[wfmJobID]
	if !ok {
		return model.JobInfo{}, fmt.Errorf("job %s: %w", wfmJobID, orchestrator.ErrNotFound)
	}
	return j, nil
}

func listWeek[T any](s *Source, op string, q model.WeekQuery, data map[string][]T, clone func(T) T, keep func(T) bool) ([]T, error) {
	s.count(op)
	if err := s.check(op, q.BusinessUnitID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []T{}
	for _, rec := range data[q.BusinessUnitID] {
		if keep(rec) {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}
