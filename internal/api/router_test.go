package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffduty/internal/activity"
	"staffduty/internal/api"
	"staffduty/internal/database/dbtest"
	"staffduty/internal/duty"
	"staffduty/internal/metrics"
	"staffduty/internal/weekly"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

var now = time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	ok := api.NewRouter(api.Options{Store: pinger{}})
	w := get(t, ok, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	down := api.NewRouter(api.Options{Store: pinger{err: errors.New("connection refused")}})
	w = get(t, down, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.MessageRecorded()
	r := api.NewRouter(api.Options{Store: pinger{}, Metrics: m.Handler()})

	w := get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "staffduty_messages_recorded_total 1")

	noMetrics := api.NewRouter(api.Options{Store: pinger{}})
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics, "/metrics").Code)
}

func TestStandings(t *testing.T) {
	repo := dbtest.Repository(t)
	clock := func() time.Time { return now }
	agg := activity.New(repo, nil)
	scheduler := weekly.New(repo, duty.NewMachine(repo, clock), agg, nil, weekly.Options{Now: clock})

	ctx := context.Background()
	for i := 0; i < 40; i++ {
		require.NoError(t, agg.RecordMessage(ctx, "123", "7", now.Add(-time.Hour)))
	}
	require.NoError(t, agg.RecordMessage(ctx, "123", "8", now.Add(-time.Hour)))

	r := api.NewRouter(api.Options{Store: repo, Standings: scheduler, Now: clock})

	w := get(t, r, "/api/guilds/123/standings")
	require.Equal(t, http.StatusOK, w.Code)
	var report weekly.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "2026-03-06", report.WeekKey)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, "7", report.Rows[0].UserID)
	assert.Equal(t, int64(2), report.Rows[0].Points)

	w = get(t, r, "/api/guilds/123/standings?top=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Len(t, report.Rows, 1)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/guilds/abc/standings").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/guilds/123/standings?top=0").Code)
}

func TestCORS(t *testing.T) {
	r := api.NewRouter(api.Options{Store: pinger{}, AllowedOrigins: []string{"https://dash.example.com"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
