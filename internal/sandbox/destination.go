package sandbox

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
)

// Destination operation names for fault injection.
const (
	OpCreateShift        = "CreateShift"
	OpUpdateShift        = "UpdateShift"
	OpDeleteShift        = "DeleteShift"
	OpCreateOpenShift    = "CreateOpenShift"
	OpUpdateOpenShift    = "UpdateOpenShift"
	OpDeleteOpenShift    = "DeleteOpenShift"
	OpCreateTimeOff      = "CreateTimeOff"
	OpUpdateTimeOff      = "UpdateTimeOff"
	OpDeleteTimeOff      = "DeleteTimeOff"
	OpUpsertAvailability = "UpsertAvailability"
	OpDeleteAvailability = "DeleteAvailability"
	OpGetUser            = "GetUserIDByLogin"
	OpGetReason          = "GetTimeOffReasonID"
	OpGetGroup           = "GetSchedulingGroupIDByName"
	OpCreateGroup        = "CreateSchedulingGroup"
	OpAddUsers           = "AddUsersToSchedulingGroup"
	OpRemoveUsers        = "RemoveUsersFromSchedulingGroup"
	OpGetSchedule        = "GetSchedule"
	OpCreateSchedule     = "CreateSchedule"
	OpShareSchedule      = "ShareSchedule"
	OpClearSchedule      = "ClearSchedule"
	OpApprove            = "ApproveRequest"
	OpDecline            = "DeclineRequest"
)

// Share is one recorded ShareSchedule call.
type Share struct {
	Start  time.Time
	End    time.Time
	Notify bool
}

// Action is one recorded approve or decline call.
type Action struct {
	TeamID   string
	Approved bool
	Ref      model.RequestRef
	Message  string
}

type group struct {
	id      string
	name    string
	members map[string]bool
}

type team struct {
	schedule     model.Schedule
	pollsLeft    int
	shifts       map[string]*model.Shift
	openShifts   map[string]*model.Shift
	timeOff      map[string]*model.TimeOff
	availability map[string]*model.Availability
	groups       map[string]*group
	shares       []Share
}

// Destination is an in-memory shifts surface. Records are keyed by the
// destination ids it assigns.
type Destination struct {
	Faults

	mu             sync.Mutex
	teams          map[string]*team
	users          map[string]string
	reasons        map[string]string
	actions        []Action
	calls          map[string]int
	nextID         int
	provisionPolls int
}

var _ orchestrator.Destination = (*Destination)(nil)

// NewDestination creates an empty destination.
func NewDestination() *Destination {
	return &Destination{
		teams:   make(map[string]*team),
		users:   make(map[string]string),
		reasons: make(map[string]string),
		calls:   make(map[string]int),
	}
}

// AddUser maps a login name to a destination user id.
func (d *Destination) AddUser(login, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[login] = userID
}

// AddReason maps a WFM reason code to a destination time-off reason id.
func (d *Destination) AddReason(code, reasonID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons[code] = reasonID
}

// SetProvisionPolls sets how many GetSchedule calls a newly created
// schedule reports Running before it completes provisioning.
func (d *Destination) SetProvisionPolls(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.provisionPolls = n
}

// ProvisionSchedule creates a provisioned schedule for the team.
func (d *Destination) ProvisionSchedule(teamID, timeZone string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.team(teamID)
	t.schedule = model.Schedule{Exists: true, Enabled: true, TimeZone: timeZone, ProvisionStatus: model.ProvisionCompleted}
}

// Calls returns how many times op was called.
func (d *Destination) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Shifts returns the team's shifts ordered by WFM id.
func (d *Destination) Shifts(teamID string) []*model.Shift {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedValues(d.team(teamID).shifts, cloneShift, (*model.Shift).Key)
}

// OpenShifts returns the team's open shifts ordered by WFM id.
func (d *Destination) OpenShifts(teamID string) []*model.Shift {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedValues(d.team(teamID).openShifts, cloneShift, (*model.Shift).Key)
}

// TimeOff returns the team's time off ordered by WFM id.
func (d *Destination) TimeOff(teamID string) []*model.TimeOff {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedValues(d.team(teamID).timeOff, cloneTimeOff, (*model.TimeOff).Key)
}

// Availability returns the team's availability ordered by WFM employee id.
func (d *Destination) Availability(teamID string) []*model.Availability {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sortedValues(d.team(teamID).availability, cloneAvailability, (*model.Availability).Key)
}

// Groups returns the team's scheduling groups by name with their sorted
// member ids.
func (d *Destination) Groups(teamID string) map[string][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string][]string)
	for _, g := range d.team(teamID).groups {
		members := make([]string, 0, len(g.members))
		for m := range g.members {
			members = append(members, m)
		}
		slices.Sort(members)
		out[g.name] = members
	}
	return out
}

// Shares returns the team's ShareSchedule calls in order.
func (d *Destination) Shares(teamID string) []Share {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.team(teamID).shares)
}

// Actions returns the approve and decline calls in order.
func (d *Destination) Actions() []Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.actions)
}

// begin counts a call and returns the injected failure for (op, key).
func (d *Destination) begin(op, key string) error {
	d.mu.Lock()
	d.calls[op]++
	d.mu.Unlock()
	return d.check(op, key)
}

func (d *Destination) team(teamID string) *team {
	t, ok := d.teams[teamID]
	if !ok {
		t = &team{
			shifts:       make(map[string]*model.Shift),
			openShifts:   make(map[string]*model.Shift),
			timeOff:      make(map[string]*model.TimeOff),
			availability: make(map[string]*model.Availability),
			groups:       make(map[string]*group),
		}
		d.teams[teamID] = t
	}
	return t
}

func (d *Destination) newID(prefix string) string {
	d.nextID++
	return fmt.Sprintf("%s-%d", prefix, d.nextID)
}

func (d *Destination) CreateShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error) {
	return d.createShift(OpCreateShift, "shift", teamID, s, func(t *team) map[string]*model.Shift { return t.shifts })
}

func (d *Destination) UpdateShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error) {
	return d.updateShift(OpUpdateShift, teamID, s, func(t *team) map[string]*model.Shift { return t.shifts })
}

func (d *Destination) DeleteShift(ctx context.Context, teamID string, s *model.Shift) error {
	return d.deleteShift(OpDeleteShift, teamID, s, func(t *team) map[string]*model.Shift { return t.shifts })
}

func (d *Destination) CreateOpenShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error) {
	return d.createShift(OpCreateOpenShift, "openshift", teamID, s, func(t *team) map[string]*model.Shift { return t.openShifts })
}

func (d *Destination) UpdateOpenShift(ctx context.Context, teamID string, s *model.Shift) (*model.Shift, error) {
	return d.updateShift(OpUpdateOpenShift, teamID, s, func(t *team) map[string]*model.Shift { return t.openShifts })
}

func (d *Destination) DeleteOpenShift(ctx context.Context, teamID string, s *model.Shift) error {
	return d.deleteShift(OpDeleteOpenShift, teamID, s, func(t *team) map[string]*model.Shift { return t.openShifts })
}

func (d *Destination) createShift(op, prefix, teamID string, s *model.Shift, bucket func(*team) map[string]*model.Shift) (*model.Shift, error) {
	if err := d.begin(op, s.Key()); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := cloneShift(s)
	c.TeamsShiftID = d.newID(prefix)
	bucket(d.team(teamID))[c.TeamsShiftID] = c
	return cloneShift(c), nil
}

func (d *Destination) updateShift(op, teamID string, s *model.Shift, bucket func(*team) map[string]*model.Shift) (*model.Shift, error) {
	if err := d.begin(op, s.Key()); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	m := bucket(d.team(teamID))
	if _, ok := m[s.TeamsShiftID]; !ok {
		return nil, fmt.Errorf("shift %s: %w", s.TeamsShiftID, orchestrator.ErrNotFound)
	}
	m[s.TeamsShiftID] = cloneShift(s)
	return cloneShift(s), nil
}

func (d *Destination) deleteShift(op, teamID string, s *model.Shift, bucket func(*team) map[string]*model.Shift) error {
	if err := d.begin(op, s.Key()); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(bucket(d.team(teamID)), s.TeamsShiftID)
	return nil
}

func (d *Destination) CreateTimeOff(ctx context.Context, teamID string, t *model.TimeOff) (*model.TimeOff, error) {
	if err := d.begin(OpCreateTimeOff, t.Key()); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := cloneTimeOff(t)
	c.TeamsTimeOffID = d.newID("timeoff")
	d.team(teamID).timeOff[c.TeamsTimeOffID] = c
	return cloneTimeOff(c), nil
}

func (d *Destination) UpdateTimeOff(ctx context.Context, teamID string, t *model.TimeOff) (*model.TimeOff, error) {
	if err := d.begin(OpUpdateTimeOff, t.Key()); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.team(teamID).timeOff
	if _, ok := m[t.TeamsTimeOffID]; !ok {
		return nil, fmt.Errorf("time off %s: %w", t.TeamsTimeOffID, orchestrator.ErrNotFound)
	}
	m[t.TeamsTimeOffID] = cloneTimeOff(t)
	return cloneTimeOff(t), nil
}

func (d *Destination) DeleteTimeOff(ctx context.Context, teamID string, t *model.TimeOff) error {
	if err := d.begin(OpDeleteTimeOff, t.Key()); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.team(teamID).timeOff, t.TeamsTimeOffID)
	return nil
}

func (d *Destination) UpsertAvailability(ctx context.Context, teamID string, a *model.Availability) (*model.Availability, error) {
	if err := d.begin(OpUpsertAvailability, a.Key()); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := cloneAvailability(a)
	if c.TeamsAvailabilityID == "" {
		c.TeamsAvailabilityID = d.newID("availability")
	}
	d.team(teamID).availability[c.TeamsAvailabilityID] = c
	return cloneAvailability(c), nil
}

func (d *Destination) DeleteAvailability(ctx context.Context, teamID string, a *model.Availability) error {
	if err := d.begin(OpDeleteAvailability, a.Key()); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.team(teamID).availability, a.TeamsAvailabilityID)
	return nil
}

func (d *Destination) GetUserIDByLogin(ctx context.Context, teamID, login string) (string, error) {
	if err := d.begin(OpGetUser, login); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.users[login]
	if !ok {
		return "", fmt.Errorf("user %q: %w", login, orchestrator.ErrNotFound)
	}
	return id, nil
}

func (d *Destination) GetTimeOffReasonID(ctx context.Context, teamID, reasonCode string) (string, error) {
	if err := d.begin(OpGetReason, reasonCode); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.reasons[reasonCode]
	if !ok {
		return "", fmt.Errorf("time off reason %q: %w", reasonCode, orchestrator.ErrNotFound)
	}
	return id, nil
}

func (d *Destination) GetSchedulingGroupIDByName(ctx context.Context, teamID, name string) (string, error) {
	if err := d.begin(OpGetGroup, name); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if g := d.findGroup(teamID, name); g != nil {
		return g.id, nil
	}
	return "", fmt.Errorf("scheduling group %q: %w", name, orchestrator.ErrNotFound)
}

func (d *Destination) CreateSchedulingGroup(ctx context.Context, teamID, name string) (string, error) {
	if err := d.begin(OpCreateGroup, name); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findGroup(teamID, name) != nil {
		return "", fmt.Errorf("scheduling group %q exists: %w", name, orchestrator.ErrConflict)
	}
	g := &group{id: d.newID("group"), name: name, members: make(map[string]bool)}
	d.team(teamID).groups[g.id] = g
	return g.id, nil
}

func (d *Destination) findGroup(teamID, name string) *group {
	want := model.NormalizeName(name)
	for _, g := range d.team(teamID).groups {
		if model.NormalizeName(g.name) == want {
			return g
		}
	}
	return nil
}

func (d *Destination) AddUsersToSchedulingGroup(ctx context.Context, teamID, groupID string, userIDs []string) error {
	return d.updateMembers(OpAddUsers, teamID, groupID, userIDs, true)
}

func (d *Destination) RemoveUsersFromSchedulingGroup(ctx context.Context, teamID, groupID string, userIDs []string) error {
	return d.updateMembers(OpRemoveUsers, teamID, groupID, userIDs, false)
}

func (d *Destination) updateMembers(op, teamID, groupID string, userIDs []string, add bool) error {
	if err := d.begin(op, groupID); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.team(teamID).groups[groupID]
	if !ok {
		return fmt.Errorf("scheduling group %s: %w", groupID, orchestrator.ErrNotFound)
	}
	for _, u := range userIDs {
		if add {
			g.members[u] = true
		} else {
			delete(g.members, u)
		}
	}
	return nil
}

func (d *Destination) GetSchedule(ctx context.Context, teamID string) (model.Schedule, error) {
	if err := d.begin(OpGetSchedule, teamID); err != nil {
		return model.Schedule{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.team(teamID)
	if !t.schedule.Exists {
		return model.Schedule{}, fmt.Errorf("schedule for %s: %w", teamID, orchestrator.ErrNotFound)
	}
	if t.schedule.ProvisionStatus == model.ProvisionRunning {
		if t.pollsLeft <= 0 {
			t.schedule.ProvisionStatus = model.ProvisionCompleted
		} else {
			t.pollsLeft--
		}
	}
	return t.schedule, nil
}

func (d *Destination) CreateSchedule(ctx context.Context, teamID, timeZone string) error {
	if err := d.begin(OpCreateSchedule, teamID); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.team(teamID)
	t.schedule = model.Schedule{Exists: true, Enabled: true, TimeZone: timeZone, ProvisionStatus: model.ProvisionRunning}
	t.pollsLeft = d.provisionPolls
	return nil
}

func (d *Destination) ShareSchedule(ctx context.Context, teamID string, start, end time.Time, notify bool) error {
	if err := d.begin(OpShareSchedule, teamID); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.team(teamID)
	t.shares = append(t.shares, Share{Start: start.UTC(), End: end.UTC(), Notify: notify})
	return nil
}

// ClearSchedule deletes the records of et that lie entirely inside
// [start, end).
func (d *Destination) ClearSchedule(ctx context.Context, teamID string, et model.EntityType, start, end time.Time) (int, error) {
	if err := d.begin(OpClearSchedule, string(et)); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.team(teamID)
	within := func(from, to time.Time) bool { return !from.Before(start) && !to.After(end) }
	switch et {
	case model.EntityShifts:
		return deleteWhere(t.shifts, func(s *model.Shift) bool { return within(s.StartDate, s.EndDate) }), nil
	case model.EntityOpenShifts:
		return deleteWhere(t.openShifts, func(s *model.Shift) bool { return within(s.StartDate, s.EndDate) }), nil
	case model.EntityTimeOff:
		return deleteWhere(t.timeOff, func(o *model.TimeOff) bool { return within(o.StartDate, o.EndDate) }), nil
	}
	return 0, fmt.Errorf("clear schedule: unsupported entity type %s", et)
}

func (d *Destination) ApproveRequest(ctx context.Context, teamID string, ref model.RequestRef, message string) error {
	return d.act(OpApprove, teamID, ref, message, true)
}

func (d *Destination) DeclineRequest(ctx context.Context, teamID string, ref model.RequestRef, message string) error {
	return d.act(OpDecline, teamID, ref, message, false)
}

func (d *Destination) act(op, teamID string, ref model.RequestRef, message string, approved bool) error {
	if err := d.begin(op, ref.RequestID); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, Action{TeamID: teamID, Approved: approved, Ref: ref, Message: message})
	return nil
}

func deleteWhere[T any](m map[string]T, match func(T) bool) int {
	n := 0
	for id, rec := range m {
		if match(rec) {
			delete(m, id)
			n++
		}
	}
	return n
}

func sortedValues[T any](m map[string]T, clone func(T) T, key func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, clone(v))
	}
	slices.SortFunc(out, func(a, b T) int { return cmp.Compare(key(a), key(b)) })
	return out
}
