package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/api/handlers"
	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/metricview"
	"github.com/wonny/aegis-screener/internal/realtime"
	"github.com/wonny/aegis-screener/internal/s0_data/collector"
	"github.com/wonny/aegis-screener/internal/s0_data/quality"
	"github.com/wonny/aegis-screener/internal/screening"
	"github.com/wonny/aegis-screener/internal/selection"
	"github.com/wonny/aegis-screener/pkg/database"
	"github.com/wonny/aegis-screener/pkg/logger"
)

type fakeRuns struct {
	runs []*selection.Run
}

func (f *fakeRuns) LatestRun(_ context.Context, preset string) (*selection.Run, error) {
	for _, r := range f.runs {
		if r.Preset == preset {
			return r, nil
		}
	}
	return nil, contracts.ErrNotFound
}

func (f *fakeRuns) ListRuns(_ context.Context, _ string, _ int) ([]*selection.Run, error) {
	return f.runs, nil
}

type fakeIngester struct {
	codes []string
	err   error
}

func (f *fakeIngester) Run(_ context.Context, ids []string) (*collector.Summary, error) {
	f.codes = ids
	if f.err != nil {
		return nil, f.err
	}
	return &collector.Summary{Succeeded: len(ids)}, nil
}

type fakeQuality struct{}

func (fakeQuality) Check(_ context.Context, asOf time.Time) (*quality.Summary, []quality.Report, error) {
	return &quality.Summary{CheckedAt: asOf, Total: 3, Passed: 2}, nil, nil
}

type recordingHub struct {
	events []string
}

func (h *recordingHub) Broadcast(eventType string, _ interface{}) {
	h.events = append(h.events, eventType)
}

type testEnv struct {
	router   http.Handler
	ingester *fakeIngester
	hub      *recordingHub
}

func newTestEnv(t *testing.T, runs handlers.RunStore) *testEnv {
	t.Helper()
	f, err := os.Open("testdata/universe.json")
	require.NoError(t, err)
	defer f.Close()

	src, err := metricview.LoadFixture(f)
	require.NoError(t, err)

	log := logger.NewNop()
	view := metricview.New(src, metricview.DefaultConfig(), log)
	engine := screening.NewEngine(view, src, src, nil, screening.DefaultConfig(), log)
	presets, err := criteria.Builtin()
	require.NoError(t, err)

	env := &testEnv{ingester: &fakeIngester{}, hub: &recordingHub{}}
	env.router = NewRouter(Handlers{
		Screening: handlers.NewScreeningHandler(engine, presets, runs, log),
		Data:      handlers.NewDataHandler(src, src, env.ingester, fakeQuality{}, env.hub, log),
		WS:        realtime.NewHub(log),
	}, log)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func itemIDs(t *testing.T, out map[string]interface{}) []string {
	t.Helper()
	items, ok := out["items"].([]interface{})
	require.True(t, ok, "items missing: %v", out)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.(map[string]interface{})["entity"].(map[string]interface{})["id"].(string)
	}
	return ids
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, out := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

type fakeDB struct {
	err error
}

func (f fakeDB) HealthCheck(_ context.Context) (*database.HealthStatus, error) {
	status := &database.HealthStatus{Healthy: f.err == nil, MaxConns: 4}
	if f.err != nil {
		status.Error = f.err.Error()
	}
	return status, f.err
}

func TestRouter_HealthWithDatabase(t *testing.T) {
	tests := []struct {
		name       string
		db         fakeDB
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", db: fakeDB{}, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "database down", db: fakeDB{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantBody: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(Handlers{DB: tt.db}, logger.NewNop())
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			var out map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, tt.wantBody, out["status"])
			assert.NotNil(t, out["database"])
		})
	}
}

func TestRouter_Screen(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantIDs    []string
	}{
		{
			name:       "range filter sorted by PER",
			body:       `{"criteria": {"ranges": {"per": {"max": 10}}}, "sort": "per", "as_of": "2024-06-30"}`,
			wantStatus: http.StatusOK,
			wantIDs:    []string{"7974", "8306"},
		},
		{
			name:       "descending PER",
			body:       `{"criteria": {"ranges": {"per": {"max": 10}}}, "sort": "-per", "as_of": "2024-06-30"}`,
			wantStatus: http.StatusOK,
			wantIDs:    []string{"8306", "7974"},
		},
		{
			name:       "restricted ids",
			body:       `{"criteria": {"ranges": {"per": {"min": 0}}}, "sort": "code", "ids": ["6758", "6758"], "as_of": "2024-06-30"}`,
			wantStatus: http.StatusOK,
			wantIDs:    []string{"6758"},
		},
		{
			name:       "unknown metric",
			body:       `{"criteria": {"ranges": {"bogus": {"min": 1}}}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty criteria",
			body:       `{"criteria": {}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown sort key",
			body:       `{"criteria": {}, "sort": "-shoe_size"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad as_of",
			body:       `{"criteria": {}, "as_of": "yesterday"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown body field",
			body:       `{"criteria": {}, "limit": 5}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"criteria": `,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := env.do(t, http.MethodPost, "/api/screen", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.NotEmpty(t, out["error"])
				return
			}
			assert.Equal(t, tt.wantIDs, itemIDs(t, out))
			assert.Equal(t, false, out["cache_hit"])
			assert.NotEmpty(t, out["data_version"])
		})
	}
}

func TestRouter_Presets(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, out := env.do(t, http.MethodGet, "/api/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	for _, p := range out["presets"].([]interface{}) {
		names = append(names, p.(map[string]interface{})["name"].(string))
	}
	assert.Contains(t, names, "value")

	rec, out = env.do(t, http.MethodGet, "/api/presets/value?as_of=2024-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "value", out["preset"])
	assert.ElementsMatch(t, []string{"7974", "8306"}, itemIDs(t, out))

	rec, out = env.do(t, http.MethodGet, "/api/presets/value?as_of=2024-06-30&page_size=1&page=2&sort=code", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"8306"}, itemIDs(t, out))
	assert.Equal(t, float64(2), out["total"])

	rec, _ = env.do(t, http.MethodGet, "/api/presets/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/presets/value?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Entity(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, out := env.do(t, http.MethodGet, "/api/entities/7974?as_of=2024-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := out["snapshot"].(map[string]interface{})
	assert.Equal(t, "7974", snap["entity"].(map[string]interface{})["id"])
	assert.Greater(t, out["total_score"].(float64), 0.0)
	assert.NotEmpty(t, out["rank"])

	rec, _ = env.do(t, http.MethodGet, "/api/entities/0000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_EntityPresetChecks(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantPass   bool
		wantFailed []string
	}{
		{
			name:       "passes value preset",
			path:       "/api/entities/7974?as_of=2024-06-30&preset=value",
			wantStatus: http.StatusOK,
			wantPass:   true,
		},
		{
			name:       "fails several value checks",
			path:       "/api/entities/6758?as_of=2024-06-30&preset=value",
			wantStatus: http.StatusOK,
			wantFailed: []string{"range:pbr", "range:dividend_yield"},
		},
		{
			name:       "unknown preset",
			path:       "/api/entities/7974?preset=nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := env.do(t, http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, "value", out["preset"])
			assert.Equal(t, tt.wantPass, out["passes_preset"])

			var failed []string
			if raw, ok := out["failed_checks"].([]interface{}); ok {
				for _, f := range raw {
					failed = append(failed, f.(string))
				}
			}
			assert.ElementsMatch(t, tt.wantFailed, failed)
		})
	}
}

func TestRouter_Benchmarks(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, out := env.do(t, http.MethodGet, "/api/benchmarks?as_of=2024-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["sectors"], 3)
}

func TestRouter_Runs(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, _ := env.do(t, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env = newTestEnv(t, &fakeRuns{runs: []*selection.Run{{ID: 1, Preset: "value", Passed: 2}}})
	rec, out := env.do(t, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["runs"], 1)

	rec, out = env.do(t, http.MethodGet, "/api/runs/value/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["passed"])

	rec, _ = env.do(t, http.MethodGet, "/api/runs/growth/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Data(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, out := env.do(t, http.MethodGet, "/api/data/universe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), out["count"])

	rec, out = env.do(t, http.MethodGet, "/api/data/quality", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["passed"])

	rec, out = env.do(t, http.MethodPost, "/api/data/collect", `{"codes": [" 7974 ", ""]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"7974"}, env.ingester.codes)
	assert.Equal(t, []string{realtime.EventIngestCompleted}, env.hub.events)
	assert.Equal(t, "success", out["status"])

	env.ingester.err = errors.New("provider down")
	rec, _ = env.do(t, http.MethodPost, "/api/data/collect", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.ingester.codes)
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, out := env.do(t, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", out["error"])

	rec, _ = env.do(t, http.MethodGet, "/api/screen", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
