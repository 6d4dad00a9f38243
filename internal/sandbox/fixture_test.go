package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/model"
)

func TestLoadFixture_SeedsBothSides(t *testing.T) {
	f, err := LoadFixture("testdata/week.yaml")
	require.NoError(t, err)
	assert.Equal(t, "bu-1", f.BusinessUnit)

	src, dst := NewSource(), NewDestination()
	f.Apply(src, dst)

	ctx := context.Background()
	q := model.WeekQuery{
		BusinessUnitID: "bu-1",
		WeekStart:      time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		WeekEnd:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	shifts, err := src.ListWeekShifts(ctx, model.Credentials{}, q)
	require.NoError(t, err)
	require.Len(t, shifts, 1, "s2 falls in the following week")
	assert.Equal(t, "s1", shifts[0].WfmShiftID)
	require.Len(t, shifts[0].Activities, 1)
	assert.Equal(t, "BREAK", shifts[0].Activities[0].Code)

	open, err := src.ListWeekOpenShifts(ctx, model.Credentials{}, q)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 2, open[0].Quantity)

	timeOff, err := src.ListWeekTimeOff(ctx, model.Credentials{}, q)
	require.NoError(t, err)
	require.Len(t, timeOff, 1)
	assert.Equal(t, "VAC", timeOff[0].ReasonCode)

	avail, err := src.ListWeekAvailability(ctx, model.Credentials{}, q)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "Monday", avail[0].Items[0].DayOfWeek)

	emp, err := src.GetEmployee(ctx, model.Credentials{}, "e1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", emp.LoginName)

	job, err := src.GetJob(ctx, model.Credentials{}, "j1")
	require.NoError(t, err)
	assert.Equal(t, "Front", job.DepartmentName)

	uid, err := dst.GetUserIDByLogin(ctx, "team-1", "ben@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-ben", uid)

	rid, err := dst.GetTimeOffReasonID(ctx, "team-1", "VAC")
	require.NoError(t, err)
	assert.Equal(t, "r-vac", rid)
}

func TestParseFixture_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing business unit",
			yaml: "shifts: []\n",
			want: "business_unit is required",
		},
		{
			name: "unknown field",
			yaml: "business_unit: bu\nshfits: []\n",
			want: "shfits",
		},
		{
			name: "duplicate shift id",
			yaml: `business_unit: bu
shifts:
  - {id: s1, job: j, start: 2024-01-08T09:00:00Z, end: 2024-01-08T10:00:00Z}
open_shifts:
  - {id: s1, job: j, start: 2024-01-08T09:00:00Z, end: 2024-01-08T10:00:00Z}
`,
			want: "duplicate id",
		},
		{
			name: "end before start",
			yaml: `business_unit: bu
shifts:
  - {id: s1, job: j, start: 2024-01-08T10:00:00Z, end: 2024-01-08T09:00:00Z}
`,
			want: "end must be after start",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
