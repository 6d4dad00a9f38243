package orchestrator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/sandbox"
	"github.com/roach88/shiftsync/internal/store"
	"github.com/roach88/shiftsync/internal/testutil"
)

const (
	testTeam = "team-1"
	testBU   = "bu-1"
	testWeek = "2024-01-08"
)

// monday is the start of testWeek; the fake clock starts there.
var monday = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

type env struct {
	t     *testing.T
	store *store.Store
	clock *testutil.FakeClock
	src   *sandbox.Source
	dst   *sandbox.Destination
	orch  *orchestrator.Orchestrator
	host  *engine.Host
	logs  *safeBuffer
	runs  int
}

// newEnv wires an orchestrator to in-memory collaborators and runs its
// host until the test ends. tune adjusts DefaultSettings.
func newEnv(t *testing.T, tune func(*orchestrator.Settings)) *env {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	settings := orchestrator.DefaultSettings()
	settings.PastWeeks = 0
	settings.FutureWeeks = 0
	settings.Entities = []model.EntityType{model.EntityShifts}
	settings.Frequency = time.Hour
	settings.GroupConflictBackoff = time.Millisecond
	if tune != nil {
		tune(&settings)
	}

	e := &env{
		t:     t,
		store: s,
		clock: testutil.NewFakeClock(monday.Add(9 * time.Hour)),
		src:   sandbox.NewSource(),
		dst:   sandbox.NewDestination(),
		logs:  &safeBuffer{},
	}
	log := slog.New(slog.NewTextHandler(e.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e.host = engine.NewHost(s,
		engine.WithWorkerID("worker-test"),
		engine.WithTimeSource(e.clock),
		engine.WithPollInterval(5*time.Millisecond),
		engine.WithLockTimeout(time.Second),
		engine.WithLogger(log),
	)
	e.orch = orchestrator.New(s, e.src, e.dst, orchestrator.WithSettings(settings), orchestrator.WithLogger(log))
	e.orch.Register(e.host)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, e.host.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

// seedTeam stores a connection and credentials without starting the
// team workflow, and provisions its destination schedule.
func (e *env) seedTeam() {
	e.t.Helper()
	ctx := context.Background()
	require.NoError(e.t, e.store.SaveConnection(ctx, model.ConnectionModel{
		TeamID: testTeam, BusinessUnitID: testBU, TimeZone: "UTC", Enabled: true,
	}))
	require.NoError(e.t, e.store.SaveCredentials(ctx, testTeam, model.Credentials{Username: "svc", Password: "secret"}))
	e.dst.ProvisionSchedule(testTeam, "UTC")
}

// seedStaff registers employees e1..e3 with destination users and a job
// in the Front department.
func (e *env) seedStaff() {
	for i, login := range []string{"ana", "ben", "cy"} {
		id := string(rune('1' + i))
		e.src.AddEmployee(model.Employee{WfmEmployeeID: "e" + id, LoginName: login + "@example.com"})
		e.dst.AddUser(login+"@example.com", "u-"+login)
	}
	e.src.AddJob(model.JobInfo{WfmJobID: "j1", Name: "Cashier", DepartmentName: "Front"})
	e.dst.AddReason("VAC", "r-vac")
}

func shiftKey() model.SnapshotKey {
	return model.SnapshotKey{TeamID: testTeam, WeekStart: testWeek, EntityType: model.EntityShifts}
}

// shift returns a shift of employee on the given day of testWeek.
func shift(id, employee string, day int) *model.Shift {
	start := monday.AddDate(0, 0, day).Add(9 * time.Hour)
	return &model.Shift{WfmShiftID: id, WfmEmployeeID: employee, WfmJobID: "j1", StartDate: start, EndDate: start.Add(8 * time.Hour)}
}

// runWeek runs one WeekSync instance to completion and returns its result.
func (e *env) runWeek(key model.SnapshotKey) (model.ResultModel, store.Instance) {
	e.t.Helper()
	e.runs++
	id := model.WeekInstanceID(key) + "-run-" + string(rune('a'+e.runs-1))
	_, err := e.host.StartNew(context.Background(), orchestrator.WorkflowWeek, id, orchestrator.WeekInput{
		Key:            key,
		BusinessUnitID: testBU,
		TimeZone:       "UTC",
		MaxChanges:     e.orch.Settings().MaxChangesPerWeek,
		LeaseDuration:  e.orch.Settings().LeaseDuration,
	})
	require.NoError(e.t, err)
	inst := e.wait(id)
	var res model.ResultModel
	if inst.Status == store.StatusCompleted {
		require.NoError(e.t, json.Unmarshal(inst.Output, &res))
	}
	return res, inst
}

func (e *env) wait(id string) store.Instance {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	inst, err := e.host.Wait(ctx, id)
	require.NoError(e.t, err, "instance %s did not finish", id)
	return inst
}

func (e *env) snapshot(key model.SnapshotKey) model.SnapshotModel[*model.Shift] {
	e.t.Helper()
	raw, err := e.store.LoadSnapshot(context.Background(), key)
	require.NoError(e.t, err)
	snap, err := model.DecodeSnapshot[*model.Shift](raw)
	require.NoError(e.t, err)
	return snap
}

func trackedIDs(snap model.SnapshotModel[*model.Shift]) []string {
	ids := make([]string, 0, len(snap.Tracked))
	for _, s := range snap.Tracked {
		ids = append(ids, s.WfmShiftID)
	}
	return ids
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
