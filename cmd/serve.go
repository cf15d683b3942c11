package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/safe-zone/internal/api"
	"github.com/sells-group/safe-zone/internal/config"
	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/observability"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the safe-zone API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics := observability.NewMetrics()
		srv, env, err := buildServer(ctx, cfg, metrics)
		if err != nil {
			return err
		}
		defer env.Close()

		return startServer(ctx, srv.Handler(), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildServer restores the property and loads hazards and neighbors
// concurrently before wiring the API.
func buildServer(ctx context.Context, c *config.Config, metrics *observability.Metrics) (*api.Server, *appEnv, error) {
	env, err := initEnv(ctx, c, metrics)
	if err != nil {
		return nil, nil, err
	}

	var (
		hazards   []geo.Feature
		neighbors []model.Neighbor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hazards, err = loadHazards(gctx, c.Data.HazardsPath)
		return eris.Wrap(err, "load hazards")
	})
	g.Go(func() error {
		var err error
		neighbors, err = loadNeighbors(gctx, c, env.Seed)
		return eris.Wrap(err, "load neighbors")
	})
	if err := g.Wait(); err != nil {
		env.Close()
		return nil, nil, err
	}

	proxy, err := newTileProxy(c, metrics)
	if err != nil {
		env.Close()
		return nil, nil, err
	}

	srv, err := api.New(api.Deps{
		Holder:  env.Holder,
		Locator: newLocator(c),
		Tiles:   proxy,
		Metrics: metrics,
	}, api.Options{
		NearbyRadiusMiles:       c.Scoring.NearbyRadiusMiles,
		NeighborhoodRadiusMiles: c.Scoring.NeighborhoodRadiusMiles,
		PublicURL:               c.Server.PublicURL,
		CORSOrigins:             c.Server.CORSOrigins,
		Region:                  env.Seed.Region,
	})
	if err != nil {
		env.Close()
		return nil, nil, err
	}
	srv.SetHazards(hazards)
	srv.SetNeighbors(neighbors)

	return srv, env, nil
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end with ctx so shutdown is not held up.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
