package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/api"
	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/metrics"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/sandbox"
	"github.com/roach88/shiftsync/internal/store"
)

type fixture struct {
	srv   *httptest.Server
	store *store.Store
	dst   *sandbox.Destination
	orch  *orchestrator.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	settings := orchestrator.DefaultSettings()
	settings.PastWeeks = 0
	settings.FutureWeeks = 0
	settings.Entities = []model.EntityType{model.EntityShifts}
	settings.Frequency = time.Hour

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	dst := sandbox.NewDestination()
	dst.ProvisionSchedule("team-1", "UTC")

	host := engine.NewHost(s,
		engine.WithPollInterval(5*time.Millisecond),
		engine.WithObserver(m),
		engine.WithLogger(log),
	)
	orch := orchestrator.New(s, sandbox.NewSource(), dst,
		orchestrator.WithSettings(settings),
		orchestrator.WithRecorder(m),
		orchestrator.WithLogger(log),
	)
	orch.Register(host)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, host.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(api.New(orch, s, api.WithLogger(log), api.WithMetrics(m)))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: s, dst: dst, orch: orch}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(bytes.TrimSpace(data)) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

const subscribeBody = `{"businessUnitId":"bu-1","timeZone":"UTC","credentials":{"username":"svc","password":"secret"}}`

func TestSubscribeHealthStop(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/teams/team-1/subscribe", subscribeBody)
	require.Equal(t, http.StatusAccepted, status, body)
	assert.Equal(t, true, body["started"])

	require.Eventually(t, func() bool {
		conn, err := f.store.GetConnection(context.Background(), "team-1")
		return err == nil && !conn.LastExecution[model.EntityShifts].IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	status, body = f.do(t, http.MethodGet, "/teams/team-1/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "team-1", body["teamId"])
	assert.Equal(t, true, body["subscribed"])

	status, _ = f.do(t, http.MethodPost, "/teams/team-1/refresh", "")
	assert.Equal(t, http.StatusAccepted, status)

	status, _ = f.do(t, http.MethodPost, "/teams/team-1/stop", "")
	assert.Equal(t, http.StatusAccepted, status)

	status, _ = f.do(t, http.MethodDelete, "/teams/team-1", "")
	assert.Equal(t, http.StatusNoContent, status)
	_, err := f.store.GetConnection(context.Background(), "team-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	status, _ = f.do(t, http.MethodPost, "/teams/team-1/refresh", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubscribe_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"businessUnitId":`},
		{"unknown field", `{"businessUnitId":"bu-1","bogus":1}`},
		{"missing business unit", `{"timeZone":"UTC"}`},
		{"bad time zone", `{"businessUnitId":"bu-1","timeZone":"Mars/Olympus"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, "/teams/team-1/subscribe", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUnknownTeam(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/teams/nobody/health", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["error"], "not found")

	status, _ = f.do(t, http.MethodPost, "/teams/nobody/stop", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/teams/nobody/actions", `{"kind":"approve","requestType":"swap","requestId":"r1"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestScheduleAction(t *testing.T) {
	f := newFixture(t)
	status, _ := f.do(t, http.MethodPost, "/teams/team-1/subscribe", subscribeBody)
	require.Equal(t, http.StatusAccepted, status)

	status, body := f.do(t, http.MethodPost, "/teams/team-1/actions",
		`{"kind":"approve","requestType":"swap","requestId":"r1","message":"ok"}`)
	require.Equal(t, http.StatusAccepted, status, body)
	assert.NotEmpty(t, body["instanceId"])

	require.Eventually(t, func() bool { return len(f.dst.Actions()) == 1 }, 5*time.Second, 10*time.Millisecond)
	action := f.dst.Actions()[0]
	assert.True(t, action.Approved)
	assert.Equal(t, "r1", action.Ref.RequestID)

	status, _ = f.do(t, http.MethodPost, "/teams/team-1/actions", `{"kind":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	status, _ := f.do(t, http.MethodPost, "/teams/team-1/subscribe", subscribeBody)
	require.Equal(t, http.StatusAccepted, status)

	status, body := f.do(t, http.MethodPost, "/teams/team-1/clear",
		`{"start":"2024-01-08T00:00:00Z","end":"2024-01-10T00:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, status, body)

	inst, err := f.orch.Host().Wait(context.Background(), model.ClearInstanceID("team-1"))
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, inst.Status)

	status, _ = f.do(t, http.MethodPost, "/teams/team-1/clear",
		`{"start":"2024-01-10T00:00:00Z","end":"2024-01-08T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `shiftsync_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
