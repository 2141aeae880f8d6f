package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/wind-estimation-service/internal/adapter/http"
	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockResults struct {
	result pipeline.Result
	ok     bool
}

func (m *mockResults) Latest() (pipeline.Result, bool) { return m.result, m.ok }

type mockRuns struct {
	runs []domain.Run
	obs  map[string][]domain.Observation
	err  error
}

func (m *mockRuns) ListRuns(_ context.Context) ([]domain.Run, error) { return m.runs, m.err }

func (m *mockRuns) ListObservations(_ context.Context, id string) ([]domain.Observation, error) {
	if m.err != nil {
		return nil, m.err
	}
	obs, ok := m.obs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return obs, nil
}

func testResult() pipeline.Result {
	run := domain.Run{ID: "run-1", Source: "flight.csv", StartedAt: time.Date(2024, 7, 14, 11, 30, 0, 0, time.UTC)}
	obs := []domain.Observation{
		domain.NewObservation(time.Minute,
			[]domain.Velocity{{East: 10, North: 2}},
			domain.SensorSample{Time: time.Minute, Lat: -35, Lng: 149, Alt: 900},
			domain.WindFit{Solution: domain.WindSolution{Airspeed: 18, WindEast: 3, WindNorth: 4}, Converged: true}),
		domain.NewObservation(65*time.Second,
			[]domain.Velocity{{East: 9, North: 3}},
			domain.SensorSample{Time: 65 * time.Second, Lat: -35.001, Lng: 149.001, Alt: 910},
			domain.WindFit{Solution: domain.WindSolution{Airspeed: 18, WindEast: 3, WindNorth: 4}, Converged: true}),
	}
	return pipeline.Result{Run: run, Targets: 2, Estimate: pipeline.Estimate{Observations: obs}}
}

func newTestServer(readyErr error, results *mockResults, runs httpadapter.RunStore) *httpadapter.Server {
	if results == nil {
		results = &mockResults{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, results, runs, slog.Default())
}

func serve(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("not ready yet"), nil, nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestObservationsReturns503BeforeFirstRun(t *testing.T) {
	srv := newTestServer(nil, &mockResults{}, nil)

	for _, path := range []string{"/observations", "/observations.geojson"} {
		rec := serve(srv, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestObservationsReturnsLatestRun(t *testing.T) {
	srv := newTestServer(nil, &mockResults{result: testResult(), ok: true}, nil)

	rec := serve(srv, "/observations")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "run-1", rec.Header().Get("X-Run-ID"))

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.InDelta(t, 60.0, body[0]["time_s"], 0)
	assert.InDelta(t, 65.0, body[1]["time_s"], 0)
	assert.InDelta(t, 5.0, body[0]["wind_speed"], 1e-9)
}

func TestObservationsEmptyRunEncodesArray(t *testing.T) {
	res := testResult()
	res.Estimate.Observations = nil
	srv := newTestServer(nil, &mockResults{result: res, ok: true}, nil)

	rec := serve(srv, "/observations")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestObservationsGeoJSON(t *testing.T) {
	srv := newTestServer(nil, &mockResults{result: testResult(), ok: true}, nil)

	rec := serve(srv, "/observations.geojson")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var body struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FeatureCollection", body.Type)
	assert.Len(t, body.Features, 3)
}

func TestRunsRoutesAbsentWithoutStore(t *testing.T) {
	rec := serve(newTestServer(nil, nil, nil), "/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsListsStoredRuns(t *testing.T) {
	res := testResult()
	store := &mockRuns{runs: []domain.Run{res.Run}}
	srv := newTestServer(nil, nil, store)

	rec := serve(srv, "/runs")

	require.Equal(t, http.StatusOK, rec.Code)
	var body []domain.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "run-1", body[0].ID)
}

func TestRunObservations(t *testing.T) {
	res := testResult()
	store := &mockRuns{obs: map[string][]domain.Observation{"run-1": res.Estimate.Observations}}
	srv := newTestServer(nil, nil, store)

	rec := serve(srv, "/runs/run-1/observations")
	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 2)

	rec = serve(srv, "/runs/missing/observations")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Contains(t, errBody["error"], "missing")
}

func TestRunStoreFailureReturns500(t *testing.T) {
	srv := newTestServer(nil, nil, &mockRuns{err: errors.New("disk I/O error")})

	assert.Equal(t, http.StatusInternalServerError, serve(srv, "/runs").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(srv, "/runs/run-1/observations").Code)
}
