package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
)

var errBoom = errors.New("boom")

func TestFaults_FailTimes(t *testing.T) {
	var f Faults
	f.FailTimes("op", "a", errBoom, 2)

	assert.ErrorIs(t, f.check("op", "a"), errBoom)
	assert.NoError(t, f.check("op", "b"))
	assert.ErrorIs(t, f.check("op", "a"), errBoom)
	assert.NoError(t, f.check("op", "a"), "exhausted after two failures")
}

func TestFaults_EmptyKeyMatchesAll(t *testing.T) {
	var f Faults
	f.Fail("op", "", errBoom)

	assert.ErrorIs(t, f.check("op", "x"), errBoom)
	assert.ErrorIs(t, f.check("op", "y"), errBoom)
	assert.NoError(t, f.check("other", "x"))

	f.Clear()
	assert.NoError(t, f.check("op", "x"))
}

func TestFaults_BeforeRunsAheadOfFailures(t *testing.T) {
	var f Faults
	var calls []string
	f.Before("op", func() { calls = append(calls, "hook") })
	f.FailTimes("op", "", errBoom, 1)

	assert.ErrorIs(t, f.check("op", "a"), errBoom)
	assert.NoError(t, f.check("op", "a"))
	assert.NoError(t, f.check("other", "a"))
	assert.Equal(t, []string{"hook", "hook"}, calls)

	f.Clear()
	assert.NoError(t, f.check("op", "a"))
	assert.Len(t, calls, 2)
}

func TestSource_ReturnsCopies(t *testing.T) {
	src := NewSource()
	start := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	src.SetShifts("bu", &model.Shift{WfmShiftID: "s1", StartDate: start, EndDate: start.Add(time.Hour)})

	q := model.WeekQuery{BusinessUnitID: "bu", WeekStart: start.Add(-time.Hour), WeekEnd: start.Add(24 * time.Hour)}
	got, err := src.ListWeekShifts(context.Background(), model.Credentials{}, q)
	require.NoError(t, err)
	got[0].WfmJobID = "mutated"

	again, err := src.ListWeekShifts(context.Background(), model.Credentials{}, q)
	require.NoError(t, err)
	assert.Empty(t, again[0].WfmJobID)
	assert.Equal(t, 2, src.Calls(OpListShifts))
}

func TestSource_GetEmployeeNotFound(t *testing.T) {
	_, err := NewSource().GetEmployee(context.Background(), model.Credentials{}, "ghost")
	assert.ErrorIs(t, err, orchestrator.ErrNotFound)
}

func TestDestination_ShiftLifecycle(t *testing.T) {
	ctx := context.Background()
	dst := NewDestination()
	start := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

	created, err := dst.CreateShift(ctx, "team", &model.Shift{WfmShiftID: "s1", StartDate: start, EndDate: start.Add(time.Hour)})
	require.NoError(t, err)
	require.NotEmpty(t, created.TeamsShiftID)

	created.EndDate = start.Add(2 * time.Hour)
	_, err = dst.UpdateShift(ctx, "team", created)
	require.NoError(t, err)

	shifts := dst.Shifts("team")
	require.Len(t, shifts, 1)
	assert.Equal(t, start.Add(2*time.Hour), shifts[0].EndDate)

	_, err = dst.UpdateShift(ctx, "team", &model.Shift{WfmShiftID: "s2", TeamsShiftID: "missing"})
	assert.ErrorIs(t, err, orchestrator.ErrNotFound)

	require.NoError(t, dst.DeleteShift(ctx, "team", created))
	assert.Empty(t, dst.Shifts("team"))
	assert.Empty(t, dst.Shifts("other"))
}

func TestDestination_InjectedFailureByKey(t *testing.T) {
	ctx := context.Background()
	dst := NewDestination()
	dst.FailTimes(OpCreateShift, "s2", errBoom, 1)

	_, err := dst.CreateShift(ctx, "team", &model.Shift{WfmShiftID: "s1"})
	require.NoError(t, err)
	_, err = dst.CreateShift(ctx, "team", &model.Shift{WfmShiftID: "s2"})
	assert.ErrorIs(t, err, errBoom)
	_, err = dst.CreateShift(ctx, "team", &model.Shift{WfmShiftID: "s2"})
	require.NoError(t, err)

	assert.Equal(t, 3, dst.Calls(OpCreateShift))
	assert.Len(t, dst.Shifts("team"), 2)
}

func TestDestination_SchedulingGroups(t *testing.T) {
	ctx := context.Background()
	dst := NewDestination()

	_, err := dst.GetSchedulingGroupIDByName(ctx, "team", "Front")
	assert.ErrorIs(t, err, orchestrator.ErrNotFound)

	id, err := dst.CreateSchedulingGroup(ctx, "team", "Front")
	require.NoError(t, err)

	_, err = dst.CreateSchedulingGroup(ctx, "team", "  front ")
	assert.ErrorIs(t, err, orchestrator.ErrConflict, "names are matched normalized")

	got, err := dst.GetSchedulingGroupIDByName(ctx, "team", "FRONT")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, dst.AddUsersToSchedulingGroup(ctx, "team", id, []string{"u2", "u1"}))
	require.NoError(t, dst.RemoveUsersFromSchedulingGroup(ctx, "team", id, []string{"u2"}))
	assert.Equal(t, map[string][]string{"Front": {"u1"}}, dst.Groups("team"))
}

func TestDestination_ProvisioningCompletesAfterPolls(t *testing.T) {
	ctx := context.Background()
	dst := NewDestination()
	dst.SetProvisionPolls(2)

	_, err := dst.GetSchedule(ctx, "team")
	assert.ErrorIs(t, err, orchestrator.ErrNotFound)

	require.NoError(t, dst.CreateSchedule(ctx, "team", "UTC"))
	for i := 0; i < 2; i++ {
		sched, err := dst.GetSchedule(ctx, "team")
		require.NoError(t, err)
		assert.False(t, sched.Provisioned(), "poll %d", i)
	}
	sched, err := dst.GetSchedule(ctx, "team")
	require.NoError(t, err)
	assert.True(t, sched.Provisioned())
	assert.Equal(t, "UTC", sched.TimeZone)
}

func TestDestination_ClearScheduleRange(t *testing.T) {
	ctx := context.Background()
	dst := NewDestination()
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := day.Add(time.Duration(i) * 24 * time.Hour)
		_, err := dst.CreateShift(ctx, "team", &model.Shift{WfmShiftID: id, StartDate: at, EndDate: at.Add(time.Hour)})
		require.NoError(t, err)
	}

	n, err := dst.ClearSchedule(ctx, "team", model.EntityShifts, day, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, dst.Shifts("team"), 1)
	assert.Equal(t, "c", dst.Shifts("team")[0].WfmShiftID)

	_, err = dst.ClearSchedule(ctx, "team", model.EntityAvailability, day, day)
	assert.Error(t, err)
}

func TestDestination_ClearScheduleOnlyRemovesContainedRecords(t *testing.T) {
	ctx := context.Background()
	dst := NewDestination()
	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	overnight := day.Add(22 * time.Hour)
	_, err := dst.CreateTimeOff(ctx, "team", &model.TimeOff{WfmTimeOffID: "night", StartDate: overnight, EndDate: overnight.Add(4 * time.Hour)})
	require.NoError(t, err)

	n, err := dst.ClearSchedule(ctx, "team", model.EntityTimeOff, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "a record crossing the end of the range is kept")

	n, err = dst.ClearSchedule(ctx, "team", model.EntityTimeOff, day, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, dst.TimeOff("team"))
}

func TestDestination_RecordsSharesAndActions(t *testing.T) {
	ctx := context.Background()
	dst := NewDestination()
	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	require.NoError(t, dst.ShareSchedule(ctx, "team", start, start.Add(time.Hour), true))
	require.NoError(t, dst.ApproveRequest(ctx, "team", model.RequestRef{RequestType: "swap", RequestID: "r1"}, "ok"))
	require.NoError(t, dst.DeclineRequest(ctx, "team", model.RequestRef{RequestType: "offer", RequestID: "r2"}, "no"))

	assert.Equal(t, []Share{{Start: start, End: start.Add(time.Hour), Notify: true}}, dst.Shares("team"))
	actions := dst.Actions()
	require.Len(t, actions, 2)
	assert.True(t, actions[0].Approved)
	assert.False(t, actions[1].Approved)
	assert.Equal(t, "r2", actions[1].Ref.RequestID)
}
