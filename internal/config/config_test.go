package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the temp dir.
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 20.0, cfg.Scoring.NearbyRadiusMiles, 0.001)
	assert.InDelta(t, 5.0, cfg.Scoring.NeighborhoodRadiusMiles, 0.001)
	assert.True(t, cfg.Location.Enabled)
	assert.InDelta(t, 37.7879, cfg.Location.DefaultLat, 0.0001)
	assert.InDelta(t, -122.4314, cfg.Location.DefaultLon, 0.0001)
	assert.Equal(t, 8*time.Second, cfg.Location.Timeout)
	assert.Empty(t, cfg.Tiles.UpstreamURL)
	assert.Equal(t, "png", cfg.Tiles.Format)
	assert.Equal(t, 1024, cfg.Tiles.CacheSize)
	assert.Equal(t, time.Hour, cfg.Tiles.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.Tiles.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 30, cfg.Circuit.ResetTimeoutSecs)
	assert.Equal(t, "data/cache", cfg.Data.CacheDir)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: safe-zone.db
log:
  level: debug
  format: console
server:
  port: 9090
tiles:
  upstream_url: https://tiles.example.com/{z}/{x}/{y}.png
  cache_ttl: 15m
data:
  hazards_path: fhsz.geojson
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "safe-zone.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://tiles.example.com/{z}/{x}/{y}.png", cfg.Tiles.UpstreamURL)
	assert.Equal(t, 15*time.Minute, cfg.Tiles.CacheTTL)
	assert.Equal(t, "fhsz.geojson", cfg.Data.HazardsPath)
	// Defaults still apply for unset values
	assert.InDelta(t, 20.0, cfg.Scoring.NearbyRadiusMiles, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("SAFEZONE_STORE_DRIVER", "postgres")
	t.Setenv("SAFEZONE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SAFEZONE_SERVER_PORT", "3000")
	t.Setenv("SAFEZONE_SCORING_NEARBY_RADIUS_MILES", "12.5")
	t.Setenv("SAFEZONE_LOCATION_TIMEOUT", "2s")
	t.Setenv("SAFEZONE_DATA_HAZARDS_URL", "ftp://mirror.example.com/fhsz.zip")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 12.5, cfg.Scoring.NearbyRadiusMiles, 0.001)
	assert.Equal(t, 2*time.Second, cfg.Location.Timeout)
	assert.Equal(t, "ftp://mirror.example.com/fhsz.zip", cfg.Data.HazardsURL)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "json"},
		Server:   ServerConfig{Port: 8080},
		Store:    StoreConfig{Driver: "memory"},
		Scoring:  ScoringConfig{NearbyRadiusMiles: 20, NeighborhoodRadiusMiles: 5},
		Location: LocationConfig{Enabled: true, DefaultLat: 37.7879, DefaultLon: -122.4314, Timeout: 8 * time.Second},
		Tiles:    TilesConfig{Format: "png", CacheSize: 10},
		Retry:    RetryConfig{MaxAttempts: 3},
		Circuit:  CircuitConfig{FailureThreshold: 5},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero radius ok", func(c *Config) { c.Scoring.NearbyRadiusMiles = 0 }, ""},
		{"negative nearby radius", func(c *Config) { c.Scoring.NearbyRadiusMiles = -1 }, "scoring.nearby_radius_miles"},
		{"negative neighborhood radius", func(c *Config) { c.Scoring.NeighborhoodRadiusMiles = -0.5 }, "scoring.neighborhood_radius_miles"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }, "database_url is required for the postgres driver"},
		{"postgres with url", func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DatabaseURL = "postgres://localhost/safezone"
		}, ""},
		{"sqlite without path", func(c *Config) { c.Store.Driver = "sqlite" }, "database_url is required for the sqlite driver"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad latitude", func(c *Config) { c.Location.DefaultLat = 91 }, "location.default_lat"},
		{"bad longitude", func(c *Config) { c.Location.DefaultLon = -181 }, "location.default_lon"},
		{"negative tile cache", func(c *Config) { c.Tiles.CacheSize = -1 }, "tiles.cache_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Scoring.NearbyRadiusMiles = -3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "scoring.nearby_radius_miles")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
