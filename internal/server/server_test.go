package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philra94/homeassistant-energy-charts/internal/aggregate"
	"github.com/Philra94/homeassistant-energy-charts/internal/coordinator"
	"github.com/Philra94/homeassistant-energy-charts/internal/energycharts"
)

type fakeProvider struct {
	snapshot *coordinator.Snapshot
	state    coordinator.State
}

func (p *fakeProvider) Snapshot() (*coordinator.Snapshot, bool) {
	return p.snapshot, p.snapshot != nil
}

func (p *fakeProvider) State() coordinator.State { return p.state }

type fakeProber struct{ ok bool }

func (p *fakeProber) Probe(ctx context.Context) bool { return p.ok }

func f(v float64) *float64 { return &v }

func testSnapshot() *coordinator.Snapshot {
	return &coordinator.Snapshot{
		Timestamp: time.Unix(1700000000, 0),
		Sources: map[string]aggregate.SourceRecord{
			"solar": {
				Key:      "solar",
				Value:    f(10),
				Unit:     aggregate.UnitMegawatt,
				NameEN:   "Solar",
				Category: aggregate.CategoryRenewable,
			},
		},
		Aggregated: aggregate.Totals{
			TotalProduction: 10,
			TotalRenewable:  10,
			RenewableShare:  100,
		},
		Categories: aggregate.Categories{SolarTotal: 10},
		History: map[string][]energycharts.DataPoint{
			"solar": {{Time: time.Unix(1700000000, 0), Value: 10}},
		},
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setup(t *testing.T, provider SnapshotProvider, prober Prober, cfg Config) http.Handler {
	t.Helper()
	handler, _, err := SetupServer(provider, prober, cfg, testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	return handler
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func fullConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableForecasts = true
	cfg.EnableHistory = true
	return cfg
}

func TestServer_Sources(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())

	rec := get(t, handler, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)

	var sources map[string]aggregate.SourceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Contains(t, sources, "solar")
	assert.Equal(t, 10.0, *sources["solar"].Value)

	rec = get(t, handler, "/api/v1/sources/solar")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, handler, "/api/v1/sources/nuclear")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AggregatedAndCategories(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())

	rec := get(t, handler, "/api/v1/aggregated")
	require.Equal(t, http.StatusOK, rec.Code)
	var totals aggregate.Totals
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
	assert.Equal(t, 100.0, totals.RenewableShare)

	rec = get(t, handler, "/api/v1/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	var categories aggregate.Categories
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	assert.Equal(t, 10.0, categories.SolarTotal)
}

func TestServer_DisabledGroupsAreNotRouted(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	cfg := DefaultConfig()
	cfg.EnableIndividual = false
	cfg.EnableCategories = false
	handler := setup(t, provider, &fakeProber{ok: true}, cfg)

	assert.Equal(t, http.StatusNotFound, get(t, handler, "/api/v1/sources").Code)
	assert.Equal(t, http.StatusNotFound, get(t, handler, "/api/v1/categories").Code)
	assert.Equal(t, http.StatusNotFound, get(t, handler, "/api/v1/history").Code)
	assert.Equal(t, http.StatusNotFound, get(t, handler, "/api/v1/forecasts").Code)
	assert.Equal(t, http.StatusOK, get(t, handler, "/api/v1/aggregated").Code)
}

func TestServer_NoSnapshotYet(t *testing.T) {
	provider := &fakeProvider{state: coordinator.StateRefreshing}
	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())

	rec := get(t, handler, "/api/v1/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, handler, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())

	rec := get(t, handler, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ready", body["state"])

	// Stale data still serves; the state says so.
	provider.state = coordinator.StateReadyStale
	rec = get(t, handler, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready-stale", body["state"])
}

func TestServer_Probe(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}

	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())
	rec := get(t, handler, "/api/v1/probe")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	handler = setup(t, provider, &fakeProber{ok: false}, fullConfig())
	rec = get(t, handler, "/api/v1/probe")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":false}`, rec.Body.String())
}

func TestServer_History(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())

	rec := get(t, handler, "/api/v1/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var history map[string][]energycharts.DataPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Contains(t, history, "solar")
	assert.Equal(t, 10.0, history["solar"][0].Value)
}

func TestServer_RequestIDHeader(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())

	rec := get(t, handler, "/healthz")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RateLimit(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	cfg := fullConfig()
	cfg.RateLimit = 1
	cfg.RateLimitBurst = 2
	handler := setup(t, provider, &fakeProber{ok: true}, cfg)

	assert.Equal(t, http.StatusOK, get(t, handler, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, handler, "/healthz").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, handler, "/healthz").Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	provider := &fakeProvider{snapshot: testSnapshot(), state: coordinator.StateReady}
	handler := setup(t, provider, &fakeProber{ok: true}, fullConfig())

	get(t, handler, "/api/v1/aggregated")
	rec := get(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "energycharts_http_requests_total")
}
