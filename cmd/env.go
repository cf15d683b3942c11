package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/safe-zone/internal/config"
	"github.com/sells-group/safe-zone/internal/fetcher"
	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/locate"
	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/observability"
	"github.com/sells-group/safe-zone/internal/property"
	"github.com/sells-group/safe-zone/internal/resilience"
	"github.com/sells-group/safe-zone/internal/seed"
	"github.com/sells-group/safe-zone/internal/store"
	"github.com/sells-group/safe-zone/internal/tiles"
)

// appEnv bundles what every command needs: the seed, the store and the
// property holder restored from it.
type appEnv struct {
	Seed   *seed.Seed
	Store  store.Store
	Holder *property.Holder
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "memory", "":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initEnv loads the seed, opens and migrates the store and restores the
// active property. metrics may be nil.
func initEnv(ctx context.Context, c *config.Config, metrics *observability.Metrics) (*appEnv, error) {
	sd, err := seed.Load(c.Data.SeedPath)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	opts := []property.Option{}
	if metrics != nil {
		opts = append(opts, property.WithMetrics(metrics))
	}
	h, err := property.Open(ctx, st, sd.Property, opts...)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	return &appEnv{Seed: sd, Store: st, Holder: h}, nil
}

// loadNeighbors reads the roster file when one is configured and falls back
// to the seed's neighbors.
func loadNeighbors(ctx context.Context, c *config.Config, sd *seed.Seed) ([]model.Neighbor, error) {
	if c.Data.NeighborsPath == "" {
		return sd.Neighbors, nil
	}
	return seed.LoadNeighbors(ctx, c.Data.NeighborsPath)
}

// loadHazards reads the configured hazard dataset and rejects it when any
// feature lacks a usable boundary. No dataset yields no features.
func loadHazards(ctx context.Context, path string) ([]geo.Feature, error) {
	if path == "" {
		zap.L().Info("no hazard dataset configured")
		return nil, nil
	}
	features, err := geo.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := geo.ValidateFeatures(features); err != nil {
		return nil, eris.Wrapf(err, "hazards %s", path)
	}
	zap.L().Info("hazards loaded", zap.String("path", path), zap.Int("features", len(features)))
	return features, nil
}

func newFetcher(c *config.Config) *fetcher.Multi {
	return fetcher.NewMulti(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Retry: retryConfig(c),
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
	)
}

// newLocator returns the fallback location source used when a request
// carries no coordinates.
func newLocator(c *config.Config) locate.Locator {
	if !c.Location.Enabled {
		return locate.Disabled{}
	}
	origin := locate.Static(model.Coordinate{Latitude: c.Location.DefaultLat, Longitude: c.Location.DefaultLon})
	return locate.WithTimeout(origin, c.Location.Timeout, nil)
}

// newTileProxy returns nil when no upstream is configured.
func newTileProxy(c *config.Config, metrics *observability.Metrics) (*tiles.Proxy, error) {
	if c.Tiles.UpstreamURL == "" {
		return nil, nil
	}
	return tiles.NewProxy(tiles.Config{
		UpstreamURL: c.Tiles.UpstreamURL,
		Format:      c.Tiles.Format,
		Timeout:     c.Tiles.Timeout,
		CacheSize:   c.Tiles.CacheSize,
		CacheTTL:    c.Tiles.CacheTTL,
		RateLimit:   rate.Limit(c.Tiles.RateLimit),
		Retry:       retryConfig(c),
		Circuit:     circuitConfig(c),
		Metrics:     metrics,
	})
}

func retryConfig(c *config.Config) resilience.RetryConfig {
	return resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
}

func circuitConfig(c *config.Config) resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)
}
