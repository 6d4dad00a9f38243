package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_AppendCompleteLoad(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateInstance(ctx, "a", "W", nil))

	fireAt := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendEvent(ctx, HistoryEvent{InstanceID: "a", Generation: 1, Seq: 2, Kind: KindTimer, Name: "timer", FireAt: fireAt}))
	require.NoError(t, s.AppendEvent(ctx, HistoryEvent{InstanceID: "a", Generation: 1, Seq: 1, Kind: KindActivity, Name: "FetchWeek", Input: json.RawMessage(`{"week":"2026-10-12"}`)}))

	require.NoError(t, s.CompleteEvent(ctx, "a", 1, 1, json.RawMessage(`{"count":3}`), ""))
	// A second completion must not overwrite the first.
	require.NoError(t, s.CompleteEvent(ctx, "a", 1, 1, json.RawMessage(`{"count":99}`), "late"))

	events, err := s.LoadHistory(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, KindActivity, events[0].Kind)
	assert.True(t, events[0].Completed)
	assert.JSONEq(t, `{"count":3}`, string(events[0].Result))
	assert.Empty(t, events[0].Error)

	assert.Equal(t, KindTimer, events[1].Kind)
	assert.False(t, events[1].Completed)
	assert.True(t, events[1].FireAt.Equal(fireAt))
}

func TestHistory_AppendIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateInstance(ctx, "a", "W", nil))

	ev := HistoryEvent{InstanceID: "a", Generation: 1, Seq: 1, Kind: KindActivity, Name: "First"}
	require.NoError(t, s.AppendEvent(ctx, ev))
	ev.Name = "Second"
	require.NoError(t, s.AppendEvent(ctx, ev))

	events, err := s.LoadHistory(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "First", events[0].Name)
}

func TestHistory_RequiresInstance(t *testing.T) {
	s := createTestStore(t)

	err := s.AppendEvent(context.Background(), HistoryEvent{InstanceID: "ghost", Generation: 1, Seq: 1, Kind: KindNow, Name: "now"})
	assert.Error(t, err, "foreign key must reject orphan history")
}
