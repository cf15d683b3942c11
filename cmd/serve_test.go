//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/safe-zone/internal/config"
	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/observability"
)

const hazardsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "fhsz-1", "properties": {"haz_class": "Very High"},
     "geometry": {"type": "Polygon", "coordinates": [[[-122.43, 37.79], [-122.42, 37.79], [-122.42, 37.80], [-122.43, 37.79]]]}},
    {"type": "Feature", "id": "fhsz-2", "properties": {"haz_class": "High"},
     "geometry": {"type": "Polygon", "coordinates": [[[-118.24, 34.05], [-118.23, 34.05], [-118.23, 34.06], [-118.24, 34.05]]]}}
  ]
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	hazards := filepath.Join(dir, "fhsz.geojson")
	require.NoError(t, os.WriteFile(hazards, []byte(hazardsGeoJSON), 0o644))

	return &config.Config{
		Log:      config.LogConfig{Level: "error", Format: "json"},
		Server:   config.ServerConfig{Port: 8080, PublicURL: "http://localhost:8080"},
		Store:    config.StoreConfig{Driver: "memory"},
		Data:     config.DataConfig{HazardsPath: hazards, CacheDir: filepath.Join(dir, "cache")},
		Scoring:  config.ScoringConfig{NearbyRadiusMiles: 20, NeighborhoodRadiusMiles: 5},
		Location: config.LocationConfig{Enabled: true, DefaultLat: 37.7879, DefaultLon: -122.4314, Timeout: time.Second},
		Tiles:    config.TilesConfig{Format: "png", CacheSize: 16, CacheTTL: time.Minute, Timeout: time.Second, RateLimit: 100},
		Retry:    config.RetryConfig{MaxAttempts: 1},
		Circuit:  config.CircuitConfig{FailureThreshold: 5, ResetTimeoutSecs: 30},
	}
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
	assert.Equal(t, 0, resolvePort(0, 0))
}

func TestBuildServer(t *testing.T) {
	c := testConfig(t)
	neighbors := filepath.Join(t.TempDir(), "neighbors.csv")
	require.NoError(t, os.WriteFile(neighbors, []byte(
		"id,completion,latitude,longitude\nn-1,2,37.7885,-122.4310\nn-2,4,37.7870,-122.4320\n"), 0o644))
	c.Data.NeighborsPath = neighbors

	srv, env, err := buildServer(context.Background(), c, observability.NewMetricsForTesting())
	require.NoError(t, err)
	defer env.Close()

	assert.Len(t, srv.Hazards(), 2)
	assert.Len(t, srv.Neighbors(), 2)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hazards/nearby", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var fc struct {
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "fhsz-1", fc.Features[0].ID)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tile-url", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildServer_WithTiles(t *testing.T) {
	c := testConfig(t)
	c.Tiles.UpstreamURL = "https://tiles.example.com/{z}/{x}/{y}.png"

	srv, env, err := buildServer(context.Background(), c, observability.NewMetricsForTesting())
	require.NoError(t, err)
	defer env.Close()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tile-url", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://localhost:8080/tiles/{z}/{x}/{y}.png")
}

func TestBuildServer_LoadFailures(t *testing.T) {
	c := testConfig(t)
	c.Data.HazardsPath = filepath.Join(t.TempDir(), "missing.geojson")
	_, _, err := buildServer(context.Background(), c, observability.NewMetricsForTesting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load hazards")

	c = testConfig(t)
	c.Data.NeighborsPath = filepath.Join(t.TempDir(), "missing.csv")
	_, _, err = buildServer(context.Background(), c, observability.NewMetricsForTesting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load neighbors")
}

func TestBuildServer_RejectsMalformedHazards(t *testing.T) {
	c := testConfig(t)
	bad := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte(`{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "ok", "properties": {},
     "geometry": {"type": "Polygon", "coordinates": [[[-122.43, 37.79], [-122.42, 37.79], [-122.42, 37.80], [-122.43, 37.79]]]}},
    {"type": "Feature", "id": "bad", "properties": {}, "geometry": null}
  ]
}`), 0o644))
	c.Data.HazardsPath = bad

	_, _, err := buildServer(context.Background(), c, observability.NewMetricsForTesting())
	require.Error(t, err)
	var mf *geo.MalformedFeatureError
	require.True(t, errors.As(err, &mf), err.Error())
	assert.Equal(t, 1, mf.Index)
	assert.Equal(t, "bad", mf.ID)
	assert.Contains(t, err.Error(), "load hazards")
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c := testConfig(t)
	srv, env, err := buildServer(ctx, c, observability.NewMetricsForTesting())
	require.NoError(t, err)
	defer env.Close()

	// Find a free port.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, srv.Handler(), port)
	}()

	var ready bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			resp.Body.Close() //nolint:errcheck
			ready = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
