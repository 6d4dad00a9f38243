package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/store"
)

type cliEnv struct {
	t  *testing.T
	db string
}

func newCLIEnv(t *testing.T) *cliEnv {
	return &cliEnv{t: t, db: filepath.Join(t.TempDir(), "cli.db")}
}

// run executes the CLI against the env's database and returns the exit
// code, stdout and stderr.
func (e *cliEnv) run(args ...string) (int, string, string) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--db", e.db, "--env-file", ""}, args...)
	code := Execute(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *cliEnv) runJSON(args ...string) (int, CLIResponse) {
	e.t.Helper()
	code, stdout, stderr := e.run(append(args, "--format", "json")...)
	var resp CLIResponse
	require.NoError(e.t, json.Unmarshal([]byte(stdout), &resp), "stdout=%q stderr=%q", stdout, stderr)
	return code, resp
}

func TestCLI_SubscribeStatusStopUnsubscribe(t *testing.T) {
	e := newCLIEnv(t)

	code, out, errOut := e.run("subscribe", "team-1", "--business-unit", "bu-1", "--username", "svc", "--password", "secret")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Equal(t, "team team-1: subscribed, workflow started\n", out)

	code, out, _ = e.run("subscribe", "team-1", "--business-unit", "bu-1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "already running")

	code, resp := e.runJSON("status", "team-1")
	require.Equal(t, ExitSuccess, code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["subscribed"])
	assert.Equal(t, string(store.StatusPending), data["status"])

	code, out, _ = e.run("stop", "team-1")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "team team-1: stopped\n", out)

	code, out, _ = e.run("status", "team-1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Workflow:    terminated")

	code, out, _ = e.run("history", "team-1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Instance:   team-1 (TeamSync)")
	assert.Contains(t, out, "Events (0):")

	code, out, _ = e.run("history", "team", "--list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "team-1")

	code, _, _ = e.run("unsubscribe", "team-1")
	require.Equal(t, ExitSuccess, code)

	code, _, errOut = e.run("refresh", "team-1")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, errOut, "team team-1 not found")
}

func TestCLI_CommandErrors(t *testing.T) {
	e := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing required flag", []string{"subscribe", "team-1"}},
		{"missing argument", []string{"status"}},
		{"unknown command", []string{"frobnicate"}},
		{"bad format", []string{"status", "team-1", "--format", "yaml"}},
		{"bad time zone", []string{"subscribe", "team-1", "--business-unit", "bu-1", "--time-zone", "Mars/Olympus"}},
		{"inverted clear range", []string{"clear", "team-1", "--from", "2024-01-10", "--to", "2024-01-08"}},
		{"bad clear date", []string{"clear", "team-1", "--from", "Jan 8", "--to", "2024-01-08"}},
		{"unknown action", []string{"action", "team-1", "teleport"}},
		{"approve without request", []string{"action", "team-1", "approve"}},
		{"bad entity", []string{"unskip", "team-1", "2024-01-08", "rotas", "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := e.run(tt.args...)
			assert.Equal(t, ExitCommandError, code)
		})
	}
}

func TestCLI_UnknownTeamFails(t *testing.T) {
	e := newCLIEnv(t)

	for _, args := range [][]string{
		{"status", "nobody"},
		{"stop", "nobody"},
		{"action", "nobody", "approve", "--request-type", "swap", "--request-id", "r1"},
		{"history", "nobody"},
	} {
		code, _, _ := e.run(args...)
		assert.Equal(t, ExitFailure, code, "%v", args)
	}
}

func TestCLI_ClearAndAction(t *testing.T) {
	e := newCLIEnv(t)
	code, _, _ := e.run("subscribe", "team-1", "--business-unit", "bu-1")
	require.Equal(t, ExitSuccess, code)

	code, out, errOut := e.run("clear", "team-1", "--from", "2024-01-08", "--to", "2024-01-15", "--entities", "shifts,time_off")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Equal(t, "team team-1: clear started\n", out)

	code, out, _ = e.run("clear", "team-1", "--from", "2024-01-08", "--to", "2024-01-15")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "already running")

	code, resp := e.runJSON("action", "team-1", "approve", "--request-type", "swap", "--request-id", "r1", "--delay", "90s")
	require.Equal(t, ExitSuccess, code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "approve", data["kind"])
	id, _ := data["instanceId"].(string)
	require.NotEmpty(t, id)

	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()
	inst, err := st.GetInstance(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, string(inst.Input), `"delaySeconds":90`)
}

func TestCLI_Unskip(t *testing.T) {
	e := newCLIEnv(t)
	key := model.SnapshotKey{TeamID: "team-1", WeekStart: "2024-01-08", EntityType: model.EntityShifts}

	st, err := store.Open(e.db)
	require.NoError(t, err)
	require.NoError(t, st.SaveSnapshot(context.Background(), key, model.RawSnapshot{Skipped: []string{"s1", "s2"}}))
	require.NoError(t, st.Close())

	code, out, errOut := e.run("unskip", "team-1", "2024-01-08", "shifts", "s1", "s9")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Equal(t, "team-1/2024-01-08/Shifts: 1 id(s) unskipped\n", out)

	st, err = store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()
	raw, err := st.LoadSnapshot(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, raw.Skipped)
}

func TestCLI_ServeStopsOnCancel(t *testing.T) {
	e := newCLIEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := Execute(ctx, []string{
		"--db", e.db, "--env-file", "",
		"serve", "--listen", "127.0.0.1:0", "--fixture", filepath.Join("..", "sandbox", "testdata", "week.yaml"),
	}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "Serving on 127.0.0.1:0")
	assert.Contains(t, stderr.String(), "sandbox fixture loaded")
}
