package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"monday": time.Monday, "Sun": time.Sunday, " SATURDAY ": time.Saturday, "thu": time.Thursday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeekday("someday")
	assert.Error(t, err)
}

func TestStartOfWeek(t *testing.T) {
	friday := time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-10-12", WeekKey(StartOfWeek(friday, time.Monday)))
	assert.Equal(t, "2026-10-11", WeekKey(StartOfWeek(friday, time.Sunday)))
	assert.Equal(t, "2026-10-16", WeekKey(StartOfWeek(friday, time.Friday)))
}

func TestWeekRange_UsesTeamZone(t *testing.T) {
	// 23:30 UTC on Sunday is already Monday in Auckland.
	now := time.Date(2026, 10, 11, 23, 30, 0, 0, time.UTC)
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)

	weeks := WeekRange(now, loc, time.Monday, 1, 1)
	require.Len(t, weeks, 3)
	assert.Equal(t, "2026-10-05", WeekKey(weeks[0]))
	assert.Equal(t, "2026-10-12", WeekKey(weeks[1]))
	assert.Equal(t, "2026-10-19", WeekKey(weeks[2]))
	assert.Equal(t, loc, weeks[1].Location())
}

func TestDayChunks(t *testing.T) {
	start := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	chunks := DayChunks(start, start.Add(60*time.Hour), 24*time.Hour)

	require.Len(t, chunks, 3)
	assert.Equal(t, start.Add(48*time.Hour), chunks[2][0])
	assert.Equal(t, start.Add(60*time.Hour), chunks[2][1])
	assert.Nil(t, DayChunks(start, start, 24*time.Hour))
}

func TestSnapshotKey(t *testing.T) {
	k := SnapshotKey{TeamID: "team", WeekStart: "2026-10-12", EntityType: EntityShifts}
	require.NoError(t, k.Validate())
	assert.Equal(t, "team-Shifts-2026-10-12", WeekInstanceID(k))
	assert.Error(t, SnapshotKey{TeamID: "team", WeekStart: "12/10", EntityType: EntityShifts}.Validate())

	et, err := ParseEntityType("open_shifts")
	require.NoError(t, err)
	assert.Equal(t, EntityOpenShifts, et)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, NormalizeName("  Front   Of House "), NormalizeName("front of house"))
	assert.Equal(t, NormalizeName("Café"), NormalizeName("CAFÉ"))
	assert.NotEqual(t, NormalizeName("Bakery"), NormalizeName("Bakery 2"))
}
