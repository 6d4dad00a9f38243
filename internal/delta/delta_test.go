package delta

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/model"
)

func hour(h int) time.Time {
	return time.Date(2026, 10, 12, h, 0, 0, 0, time.UTC)
}

func shift(id, emp string, start, end int) *model.Shift {
	return &model.Shift{WfmShiftID: id, WfmEmployeeID: emp, WfmJobID: "J1", StartDate: hour(start), EndDate: hour(end)}
}

func keys(items []*model.Shift) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		out = append(out, s.Key())
	}
	return out
}

func TestCompute_ScenarioA_NewShiftIsCreated(t *testing.T) {
	from := []*model.Shift{shift("S1", "E1", 9, 17)}
	to := []*model.Shift{shift("S1", "E1", 9, 17), shift("S2", "E2", 9, 17)}

	r := Compute(from, to)

	assert.Equal(t, []string{"S2"}, keys(r.Created))
	assert.Empty(t, r.Updated)
	assert.Empty(t, r.Deleted)
	assert.True(t, r.HasChanges())
}

func TestCompute_ScenarioB_RemovedShiftIsDeleted(t *testing.T) {
	from := []*model.Shift{shift("S1", "E1", 9, 17)}

	r := Compute(from, nil)

	assert.Equal(t, []string{"S1"}, keys(r.Deleted))
	assert.Empty(t, r.Created)
	assert.Empty(t, r.Updated)
}

func TestCompute_ScenarioC_ChangedShiftIsUpdatedWithCarriedID(t *testing.T) {
	prev := shift("S1", "E1", 9, 17)
	prev.TeamsShiftID = "teams-1"
	prev.TeamsEmployeeID = "user-1"
	next := shift("S1", "E1", 9, 18)

	r := Compute([]*model.Shift{prev}, []*model.Shift{next})

	require.Equal(t, []string{"S1"}, keys(r.Updated))
	assert.Equal(t, "teams-1", r.Updated[0].TeamsShiftID)
	assert.Equal(t, "user-1", r.Updated[0].TeamsEmployeeID)
	assert.Empty(t, r.Created)
	assert.Empty(t, r.Deleted)
}

func TestCompute_UnchangedRecordStillReceivesIDs(t *testing.T) {
	prev := shift("S1", "E1", 9, 17)
	prev.TeamsShiftID = "teams-1"
	next := shift("S1", "E1", 9, 17)

	r := Compute([]*model.Shift{prev}, []*model.Shift{next})

	assert.False(t, r.HasChanges())
	assert.Equal(t, "teams-1", next.TeamsShiftID)
}

func TestCompute_IDCarryForward_DependsOnSourceField(t *testing.T) {
	prev := shift("S1", "E1", 9, 17)
	prev.TeamsShiftID = "teams-1"
	prev.TeamsEmployeeID = "user-1"

	same := shift("S1", "E1", 10, 17)
	Compute([]*model.Shift{prev}, []*model.Shift{same})
	assert.Equal(t, "user-1", same.TeamsEmployeeID)

	moved := shift("S1", "E2", 9, 17)
	r := Compute([]*model.Shift{prev}, []*model.Shift{moved})
	require.Len(t, r.Updated, 1)
	assert.Empty(t, r.Updated[0].TeamsEmployeeID, "employee changed, so the old user id must not leak")
	assert.Equal(t, "teams-1", r.Updated[0].TeamsShiftID)
}

func TestCompute_DuplicateKeysLastWriteWins(t *testing.T) {
	to := []*model.Shift{shift("S1", "E1", 9, 17), shift("S2", "E1", 9, 17), shift("S1", "E1", 9, 20)}

	r := Compute(nil, to)

	require.Equal(t, []string{"S1", "S2"}, keys(r.Created))
	assert.True(t, r.Created[0].EndDate.Equal(hour(20)))
}

func TestComputeExcluding_SkippedIDsNeverOffered(t *testing.T) {
	from := []*model.Shift{shift("S1", "E1", 9, 17)}
	to := []*model.Shift{shift("S1", "E1", 9, 18), shift("S3", "E3", 9, 17)}

	r := ComputeExcluding(from, to, map[string]bool{"S1": true, "S3": true})

	assert.False(t, r.HasChanges())
}

// Property: every key lands in exactly one bucket, or none if unchanged.
func TestCompute_PartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		var from, to []*model.Shift
		inFrom, inTo := map[string]*model.Shift{}, map[string]*model.Shift{}
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("S%d", i)
			if rng.Intn(3) > 0 {
				s := shift(id, "E1", 9, 17)
				from = append(from, s)
				inFrom[id] = s
			}
			if rng.Intn(3) > 0 {
				end := 17
				if rng.Intn(2) == 0 {
					end = 18
				}
				s := shift(id, "E1", 9, end)
				to = append(to, s)
				inTo[id] = s
			}
		}

		r := Compute(from, to)

		seen := map[string]string{}
		for bucket, items := range map[string][]*model.Shift{"created": r.Created, "updated": r.Updated, "deleted": r.Deleted} {
			for _, s := range items {
				prev, dup := seen[s.Key()]
				require.False(t, dup, "key %s in %s and %s", s.Key(), prev, bucket)
				seen[s.Key()] = bucket
			}
		}
		for id, s := range inTo {
			old, shared := inFrom[id]
			switch {
			case !shared:
				assert.Equal(t, "created", seen[id])
			case s.HasChanges(old):
				assert.Equal(t, "updated", seen[id])
			default:
				assert.NotContains(t, seen, id)
			}
		}
		for id := range inFrom {
			if _, ok := inTo[id]; !ok {
				assert.Equal(t, "deleted", seen[id])
			}
		}
		assert.Empty(t, r.Failed)
		assert.Empty(t, r.Skipped)
	}
}

func TestTruncate(t *testing.T) {
	r := &Result[*model.Shift]{
		Created: []*model.Shift{shift("C1", "E", 1, 2), shift("C2", "E", 1, 2)},
		Updated: []*model.Shift{shift("U1", "E", 1, 2)},
		Deleted: []*model.Shift{shift("D1", "E", 1, 2)},
	}

	assert.False(t, r.Truncate(0))
	assert.False(t, r.Truncate(4))
	assert.True(t, r.Truncate(2))
	assert.Equal(t, []string{"D1"}, keys(r.Deleted))
	assert.Equal(t, []string{"C1"}, keys(r.Created))
	assert.Empty(t, r.Updated)
	assert.Equal(t, 2, r.Len())
}

func TestResult_All(t *testing.T) {
	r := &Result[*model.Shift]{
		Created: []*model.Shift{shift("C", "E", 1, 2)},
		Updated: []*model.Shift{shift("U", "E", 1, 2)},
		Deleted: []*model.Shift{shift("D", "E", 1, 2)},
	}
	assert.Equal(t, []string{"C", "U", "D"}, keys(r.All()))
}
