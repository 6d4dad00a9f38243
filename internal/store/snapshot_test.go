package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/model"
)

var weekKey = model.SnapshotKey{TeamID: "team-1", WeekStart: "2026-10-12", EntityType: model.EntityShifts}

func rawSnap(tracked string, skipped ...string) model.RawSnapshot {
	return model.RawSnapshot{Tracked: json.RawMessage(tracked), Skipped: skipped}
}

func TestLoadSnapshot_MissingIsEmpty(t *testing.T) {
	s := createTestStore(t)

	snap, err := s.LoadSnapshot(context.Background(), weekKey)
	require.NoError(t, err)

	decoded, err := model.DecodeSnapshot[*model.Shift](snap)
	require.NoError(t, err)
	assert.Empty(t, decoded.Tracked)
	assert.Empty(t, decoded.Skipped)
}

func TestSaveSnapshot_RoundTripAndOverwrite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, weekKey, rawSnap(`[{"wfmShiftId":"S1"}]`, "S9")))
	require.NoError(t, s.SaveSnapshot(ctx, weekKey, rawSnap(`[{"wfmShiftId":"S2"}]`)))
	require.NoError(t, s.SaveSnapshot(ctx, weekKey, rawSnap(`[{"wfmShiftId":"S2"}]`)))

	snap, err := s.LoadSnapshot(ctx, weekKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"wfmShiftId":"S2"}]`, string(snap.Tracked))
	assert.Empty(t, snap.Skipped)
}

func TestSaveSnapshot_InvalidKey(t *testing.T) {
	s := createTestStore(t)

	err := s.SaveSnapshot(context.Background(), model.SnapshotKey{TeamID: "team-1"}, rawSnap(`[]`))
	assert.Error(t, err)
}

func TestLease_HeldByAnotherWriter(t *testing.T) {
	s, clock := createTestStoreWithClock(t)
	ctx := context.Background()

	_, token, err := s.LoadSnapshotWithLease(ctx, weekKey, "writer-a", time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, NoLease, token)

	_, _, err = s.LoadSnapshotWithLease(ctx, weekKey, "writer-b", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	clock.Advance(2 * time.Minute)
	_, tokenB, err := s.LoadSnapshotWithLease(ctx, weekKey, "writer-b", time.Minute)
	require.NoError(t, err)

	// writer-a's lease expired and was taken over.
	err = s.SaveSnapshotWithLease(ctx, weekKey, token, rawSnap(`[{"wfmShiftId":"A"}]`))
	assert.ErrorIs(t, err, ErrLeaseLost)

	require.NoError(t, s.SaveSnapshotWithLease(ctx, weekKey, tokenB, rawSnap(`[{"wfmShiftId":"B"}]`)))
	snap, err := s.LoadSnapshot(ctx, weekKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"wfmShiftId":"B"}]`, string(snap.Tracked))
}

func TestLease_SameOwnerTakesOver(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, first, err := s.LoadSnapshotWithLease(ctx, weekKey, "week-1", time.Minute)
	require.NoError(t, err)
	_, second, err := s.LoadSnapshotWithLease(ctx, weekKey, "week-1", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, s.SaveSnapshotWithLease(ctx, weekKey, first, rawSnap(`[]`)), ErrLeaseLost)
	assert.NoError(t, s.SaveSnapshotWithLease(ctx, weekKey, second, rawSnap(`[]`)))
}

func TestLease_ExpiredBeforeSave(t *testing.T) {
	s, clock := createTestStoreWithClock(t)
	ctx := context.Background()

	_, token, err := s.LoadSnapshotWithLease(ctx, weekKey, "writer-a", time.Minute)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	assert.ErrorIs(t, s.SaveSnapshotWithLease(ctx, weekKey, token, rawSnap(`[]`)), ErrLeaseLost)
}

func TestLease_SaveReleasesLease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, token, err := s.LoadSnapshotWithLease(ctx, weekKey, "writer-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshotWithLease(ctx, weekKey, token, rawSnap(`[]`)))

	_, _, err = s.LoadSnapshotWithLease(ctx, weekKey, "writer-b", time.Minute)
	assert.NoError(t, err)
}

func TestLease_Release(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, token, err := s.LoadSnapshotWithLease(ctx, weekKey, "writer-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseLease(ctx, weekKey, token))

	_, _, err = s.LoadSnapshotWithLease(ctx, weekKey, "writer-b", time.Minute)
	assert.NoError(t, err)
	assert.NoError(t, s.ReleaseLease(ctx, weekKey, token), "releasing a stale token is harmless")
}

func TestLease_Disabled(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, token, err := s.LoadSnapshotWithLease(ctx, weekKey, "writer-a", 0)
	require.NoError(t, err)
	assert.Equal(t, NoLease, token)

	_, other, err := s.LoadSnapshotWithLease(ctx, weekKey, "writer-b", 0)
	require.NoError(t, err)
	assert.Equal(t, NoLease, other)

	require.NoError(t, s.SaveSnapshotWithLease(ctx, weekKey, NoLease, rawSnap(`[{"wfmShiftId":"S1"}]`, "S2")))
	snap, err := s.LoadSnapshot(ctx, weekKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, snap.Skipped)
}

func TestListTeamSnapshots_ReportsLeaseAndSkipped(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, weekKey, rawSnap(`[]`, "S1", "S2")))
	_, _, err := s.LoadSnapshotWithLease(ctx, weekKey, "week-1", time.Minute)
	require.NoError(t, err)

	infos, err := s.ListTeamSnapshots(ctx, "team-1")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].SkippedCount)
	assert.Equal(t, "week-1", infos[0].LeaseOwner)
	assert.False(t, infos[0].LeaseUntil.IsZero())
}

func TestDeleteSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, weekKey, rawSnap(`[{"wfmShiftId":"S1"}]`)))
	require.NoError(t, s.DeleteSnapshot(ctx, weekKey))
	require.NoError(t, s.DeleteSnapshot(ctx, weekKey))

	snap, err := s.LoadSnapshot(ctx, weekKey)
	require.NoError(t, err)
	assert.Empty(t, snap.Skipped)
}
