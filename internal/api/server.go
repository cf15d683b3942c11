// Package api serves property state, scores, nearby hazards and map tiles
// over HTTP.
package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/locate"
	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/observability"
	"github.com/sells-group/safe-zone/internal/property"
	"github.com/sells-group/safe-zone/internal/seed"
	"github.com/sells-group/safe-zone/internal/tiles"
)

// Options holds the request-independent settings of a Server.
type Options struct {
	NearbyRadiusMiles       float64
	NeighborhoodRadiusMiles float64
	// PublicURL is the base advertised by /tile-url.
	PublicURL   string
	CORSOrigins []string
	Region      seed.Region
}

// Deps are the collaborators a Server reads from. Holder is required.
type Deps struct {
	Holder  *property.Holder
	Locator locate.Locator
	Tiles   *tiles.Proxy // nil disables /tiles and /tile-url
	Metrics *observability.Metrics
	// MetricsHandler serves /metrics. Defaults to the global Prometheus registry.
	MetricsHandler http.Handler
}

// Server is the HTTP front for a single active property.
type Server struct {
	opts           Options
	holder         *property.Holder
	locator        locate.Locator
	tiles          *tiles.Proxy
	metrics        *observability.Metrics
	metricsHandler http.Handler

	hazards   atomic.Pointer[[]geo.Feature]
	neighbors atomic.Pointer[[]model.Neighbor]
}

// New creates a Server. Hazards and neighbors start empty; load them with
// SetHazards and SetNeighbors.
func New(d Deps, opts Options) (*Server, error) {
	if d.Holder == nil {
		return nil, eris.New("api: property holder is required")
	}
	if d.Locator == nil {
		d.Locator = locate.Disabled{}
	}
	if d.MetricsHandler == nil {
		d.MetricsHandler = promhttp.Handler()
	}
	if opts.NearbyRadiusMiles <= 0 {
		opts.NearbyRadiusMiles = geo.DefaultNearbyRadiusMiles
	}
	if opts.NeighborhoodRadiusMiles <= 0 {
		opts.NeighborhoodRadiusMiles = geo.DefaultNeighborhoodRadiusMiles
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{
		opts:           opts,
		holder:         d.Holder,
		locator:        d.Locator,
		tiles:          d.Tiles,
		metrics:        d.Metrics,
		metricsHandler: d.MetricsHandler,
	}
	s.SetHazards(nil)
	s.SetNeighbors(nil)
	return s, nil
}

// SetHazards replaces the hazard features used by /hazards/nearby.
func (s *Server) SetHazards(features []geo.Feature) {
	cp := append([]geo.Feature(nil), features...)
	s.hazards.Store(&cp)
	if s.metrics != nil {
		s.metrics.HazardFeatures.Set(float64(len(cp)))
	}
}

// SetNeighbors replaces the neighbor roster.
func (s *Server) SetNeighbors(neighbors []model.Neighbor) {
	cp := append([]model.Neighbor(nil), neighbors...)
	s.neighbors.Store(&cp)
}

// Hazards returns the loaded hazard features.
func (s *Server) Hazards() []geo.Feature { return *s.hazards.Load() }

// Neighbors returns the loaded neighbor roster.
func (s *Server) Neighbors() []model.Neighbor { return *s.neighbors.Load() }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metricsHandler)

	r.Get("/region", s.handleRegion)
	r.Route("/property", func(r chi.Router) {
		r.Get("/", s.handleProperty)
		r.Get("/history", s.handleHistory)
		r.Get("/stream", s.handleStream)
		r.Post("/tasks/{taskID}/toggle", s.handleToggle)
	})
	r.Get("/score", s.handleScore)
	r.Get("/neighbors", s.handleNeighbors)
	r.Get("/hazards/nearby", s.handleNearby)

	r.Get("/tile-url", s.handleTileURL)
	r.Get("/tiles/stats", s.handleTileStats)
	r.Get("/tiles/{z}/{x}/{tile}", s.handleTile)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":      "ok",
		"property_id": s.holder.Snapshot().ID,
		"hazards":     len(s.Hazards()),
		"neighbors":   len(s.Neighbors()),
	}
	if s.tiles != nil {
		body["tiles"] = s.tiles.Breaker().State().String()
	}
	writeJSON(w, http.StatusOK, body)
}

// regionResponse is the initial viewport plus the radii of the map's circle
// overlays.
type regionResponse struct {
	seed.Region
	NearbyRadiusMeters       float64 `json:"nearby_radius_meters"`
	NeighborhoodRadiusMeters float64 `json:"neighborhood_radius_meters"`
}

func (s *Server) handleRegion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, regionResponse{
		Region:                   s.opts.Region,
		NearbyRadiusMeters:       s.opts.NearbyRadiusMiles * geo.MetersPerMile,
		NeighborhoodRadiusMeters: s.opts.NeighborhoodRadiusMiles * geo.MetersPerMile,
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
