package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSnapshot_ZeroValueIsEmpty(t *testing.T) {
	m, err := DecodeSnapshot[*Shift](RawSnapshot{})
	require.NoError(t, err)
	assert.Empty(t, m.Tracked)
	assert.NotNil(t, m.Tracked)
	assert.Empty(t, m.Skipped)
}

func TestSnapshot_EncodeDecode(t *testing.T) {
	m := SnapshotModel[*Shift]{
		Tracked: []*Shift{{WfmShiftID: "S1", TeamsShiftID: "T1"}},
		Skipped: []string{"S9"},
	}
	raw, err := m.Encode()
	require.NoError(t, err)
	assert.True(t, json.Valid(raw.Tracked))

	back, err := DecodeSnapshot[*Shift](raw)
	require.NoError(t, err)
	require.Len(t, back.Tracked, 1)
	assert.Equal(t, "T1", back.Tracked[0].TeamsShiftID)
	assert.Equal(t, []string{"S9"}, back.Skipped)
}

func TestSnapshot_Merge(t *testing.T) {
	m := SnapshotModel[*Shift]{Tracked: []*Shift{
		{WfmShiftID: "S1", TeamsShiftID: "T1"},
		{WfmShiftID: "S2", TeamsShiftID: "T2"},
		{WfmShiftID: "S3", TeamsShiftID: "T3"},
	}}

	m.Merge(
		[]*Shift{{WfmShiftID: "S1", TeamsShiftID: "T1b"}, {WfmShiftID: "S4", TeamsShiftID: "T4"}},
		[]*Shift{{WfmShiftID: "S2"}},
		[]*Shift{{WfmShiftID: "S3"}, {WfmShiftID: "S5"}},
	)

	keys := make([]string, 0, len(m.Tracked))
	for _, s := range m.Tracked {
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []string{"S1", "S3", "S4"}, keys)
	assert.Equal(t, "T1b", m.Tracked[0].TeamsShiftID)
	assert.Equal(t, "T3", m.Tracked[1].TeamsShiftID, "a skipped update keeps its destination id")
	assert.Equal(t, []string{"S3", "S5"}, m.Skipped)
}

func TestSnapshot_SkipAndUnskip(t *testing.T) {
	var m SnapshotModel[*TimeOff]
	m.AddSkipped("b", "a", "b")
	assert.Equal(t, []string{"a", "b"}, m.Skipped)

	assert.Equal(t, 1, m.Unskip("a", "zz"))
	assert.Equal(t, []string{"b"}, m.Skipped)
	assert.True(t, m.SkippedSet()["b"])
}

func TestResultModel_Add(t *testing.T) {
	var total ResultModel
	total.Add(ResultModel{Created: 1, HasChanges: true, RangeStart: at(9), RangeEnd: at(10)})
	total.Add(ResultModel{Failed: 2})
	total.Add(ResultModel{Deleted: 1, HasChanges: true, RangeStart: at(1), RangeEnd: at(5)})

	assert.Equal(t, 1, total.Created)
	assert.Equal(t, 2, total.Failed)
	assert.Equal(t, 1, total.Deleted)
	assert.True(t, total.HasChanges)
	assert.True(t, total.RangeStart.Equal(at(1)))
	assert.True(t, total.RangeEnd.Equal(at(10)))
}
