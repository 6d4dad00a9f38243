package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DefaultSettings(), s)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database: /var/lib/shiftsync.db
sync:
  start_day_of_week: sun
  frequency: 5m
  draft_mode: true
  entities: [shifts, open_shifts]
groups:
  cache_ttl: 90s
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/shiftsync.db", cfg.Database)
	assert.Equal(t, ":8080", cfg.Listen)

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, s.StartDayOfWeek)
	assert.Equal(t, 5*time.Minute, s.Frequency)
	assert.True(t, s.DraftMode)
	assert.Equal(t, []model.EntityType{model.EntityShifts, model.EntityOpenShifts}, s.Entities)
	assert.Equal(t, 90*time.Second, s.GroupCacheTTL)
	assert.Equal(t, 3, s.FutureWeeks)
}

func TestParse_EmptyDocumentUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("sync:\n  frequncy: 5m\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frequncy")
}

func TestParse_RejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("sync:\n  frequency: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Sync.PastWeeks = -1
	cfg.Sync.Entities = []string{"shifts", "bogus", "Shifts"}
	cfg.Sync.Frequency = 0

	err := cfg.Validate()
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	codes := make(map[string]int)
	for _, p := range cerr.Problems {
		codes[p.Code]++
	}
	assert.GreaterOrEqual(t, codes[ErrSchema], 2)
	assert.Equal(t, 2, codes[ErrEntity])
	assert.Equal(t, 1, codes[ErrDuration])
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "sync.past_weeks")
	assert.Contains(t, err.Error(), "sync.frequency")
}

func TestValidate_RejectsEmptyEntities(t *testing.T) {
	cfg := Default()
	cfg.Sync.Entities = []string{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.entities")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SHIFTSYNC_LISTEN":              "127.0.0.1:9000",
		"SHIFTSYNC_SYNC_PAST_WEEKS":     "2",
		"SHIFTSYNC_SYNC_NOTIFY":         "true",
		"SHIFTSYNC_SYNC_LEASE_DURATION": "30s",
		"SHIFTSYNC_SYNC_ENTITIES":       "time_off, availability,",
		"SHIFTSYNC_ENGINE_LOCK_TIMEOUT": "1m",
		"SHIFTSYNC_SANDBOX_FIXTURE":     "fixture.yaml",
		"UNRELATED_SYNC_PAST_WEEKS":     "9",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 2, cfg.Sync.PastWeeks)
	assert.True(t, cfg.Sync.Notify)
	assert.Equal(t, 30*time.Second, cfg.Sync.LeaseDuration.Std())
	assert.Equal(t, []string{"time_off", "availability"}, cfg.Sync.Entities)
	assert.Equal(t, time.Minute, cfg.Engine.LockTimeout.Std())
	assert.Equal(t, "fixture.yaml", cfg.Sandbox.Fixture)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "SHIFTSYNC_SYNC_PAST_WEEKS" {
			return "many", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHIFTSYNC_SYNC_PAST_WEEKS")
}

func TestLoad_FileDotenvAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shiftsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":7000\"\nworker_id: from-file\n"), 0o644))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SHIFTSYNC_WORKER_ID=from-dotenv\nSHIFTSYNC_LOG_FORMAT=json\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("SHIFTSYNC_WORKER_ID")
		os.Unsetenv("SHIFTSYNC_LOG_FORMAT")
	})
	t.Setenv("SHIFTSYNC_LISTEN", ":9090")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "from-dotenv", cfg.WorkerID)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingDotenvIsIgnored(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, "shiftsync.db", cfg.Database)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLogger_FormatAndLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	log := cfg.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown", "team", "team-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "team-1", line["team"])
}

func TestHostOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.HostOptions(), 3)
	cfg.WorkerID = "worker-a"
	assert.Len(t, cfg.HostOptions(), 4)
}
