package api

import (
	"bytes"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/model"
)

// handleNearby returns the hazard features near lat/lon as a GeoJSON
// FeatureCollection. Without coordinates the configured locator supplies the
// origin.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	radius := s.opts.NearbyRadiusMiles
	if v := q.Get("radius"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.countNearby("error")
			writeBadRequest(w, "radius must be a number of miles")
			return
		}
		radius = f
	}

	origin, ok := s.parseOrigin(w, q.Get("lat"), q.Get("lon"))
	if !ok {
		s.countNearby("error")
		return
	}
	if origin == nil {
		loc, err := s.locator.Locate(r.Context())
		if err != nil {
			s.countNearby("error")
			writeFailure(w, r, err)
			return
		}
		origin = &loc
	}

	features, err := geo.FilterNearby(*origin, s.Hazards(), radius)
	if errors.Is(err, geo.ErrInvalidRadius) {
		s.countNearby("error")
		writeBadRequest(w, "radius must be a finite non-negative number of miles")
		return
	}
	if err != nil {
		s.countNearby("error")
		writeFailure(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := geo.EncodeGeoJSON(&buf, features); err != nil {
		s.countNearby("error")
		writeFailure(w, r, err)
		return
	}

	s.countNearby("ok")
	if s.metrics != nil {
		s.metrics.NearbyReturned.Observe(float64(len(features)))
	}
	zap.L().Debug("api: nearby hazards",
		zap.Float64("lat", origin.Latitude),
		zap.Float64("lon", origin.Longitude),
		zap.Float64("radius_miles", radius),
		zap.Int("features", len(features)),
	)

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseOrigin returns nil when neither coordinate is given. A half-specified
// or unparseable pair writes a 400 and reports false.
func (s *Server) parseOrigin(w http.ResponseWriter, lat, lon string) (*model.Coordinate, bool) {
	if lat == "" && lon == "" {
		return nil, true
	}
	if lat == "" || lon == "" {
		writeBadRequest(w, "lat and lon must be given together")
		return nil, false
	}

	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || math.IsNaN(la) || la < -90 || la > 90 {
		writeBadRequest(w, "lat must be a number within [-90, 90]")
		return nil, false
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || math.IsNaN(lo) || lo < -180 || lo > 180 {
		writeBadRequest(w, "lon must be a number within [-180, 180]")
		return nil, false
	}
	return &model.Coordinate{Latitude: la, Longitude: lo}, true
}

func (s *Server) countNearby(outcome string) {
	if s.metrics != nil {
		s.metrics.NearbyRequests.WithLabelValues(outcome).Inc()
	}
}
