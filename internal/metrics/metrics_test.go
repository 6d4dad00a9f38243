package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/delta"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/store"
)

func TestMetrics_Recorder(t *testing.T) {
	m := New()

	m.ItemsApplied(model.EntityShifts, delta.OutcomeApplied, 3)
	m.ItemsApplied(model.EntityShifts, delta.OutcomeApplied, 2)
	m.ItemsApplied(model.EntityShifts, delta.OutcomeFailed, 0)
	m.GroupCacheLookup(true)
	m.GroupCacheLookup(false)
	m.GroupCacheLookup(false)
	m.WeekSynced(model.EntityTimeOff, 150*time.Millisecond)

	assert.Equal(t, 5.0, promtest.ToFloat64(m.syncItems.WithLabelValues("Shifts", "applied")))
	assert.Equal(t, 1, promtest.CollectAndCount(m.syncItems), "zero counts do not create a series")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.groupCacheHits))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.groupCacheMisses))
	assert.Equal(t, 1, promtest.CollectAndCount(m.weekDuration))
}

func TestMetrics_Observer(t *testing.T) {
	m := New()
	m.InstanceFinished("WeekSync", store.StatusCompleted, time.Second)
	m.InstanceFinished("WeekSync", store.StatusFailed, time.Second)
	m.InstanceFinished("WeekSync", store.StatusCompleted, 2*time.Second)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.instancesFinished.WithLabelValues("WeekSync", "completed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.instancesFinished.WithLabelValues("WeekSync", "failed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.workflowFailures.WithLabelValues("WeekSync")))

	m.CycleFailed("TeamSync")
	m.CycleFailed("TeamSync")
	assert.Equal(t, 2.0, promtest.ToFloat64(m.workflowFailures.WithLabelValues("TeamSync")))
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/teams/{teamID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teams/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, 2.0, promtest.ToFloat64(m.httpRequests.WithLabelValues("GET", "/teams/{teamID}", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `shiftsync_http_requests_total{method="GET",route="/teams/{teamID}",status="404"} 2`))
	assert.Contains(t, string(body), "go_goroutines")
}
