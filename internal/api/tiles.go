package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/tiles"
)

const errTilesDisabled = "tile upstream not configured"

// handleTileURL returns the template clients should load map tiles from.
func (s *Server) handleTileURL(w http.ResponseWriter, _ *http.Request) {
	if s.tiles == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errTilesDisabled})
		return
	}
	base := strings.TrimRight(s.opts.PublicURL, "/")
	writeJSON(w, http.StatusOK, map[string]string{
		"tile_url": base + "/tiles/{z}/{x}/{y}." + s.tiles.Format(),
	})
}

// handleTile serves /tiles/{z}/{x}/{y}.{ext} through the proxy.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	if s.tiles == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errTilesDisabled})
		return
	}

	yStr, ext, ok := strings.Cut(chi.URLParam(r, "tile"), ".")
	if !ok || ext != s.tiles.Format() {
		writeBadRequest(w, "tile must be requested as {y}."+s.tiles.Format())
		return
	}
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(yStr)
	if errZ != nil || errX != nil || errY != nil {
		writeBadRequest(w, "tile coordinates must be integers")
		return
	}

	data, err := s.tiles.Fetch(r.Context(), z, x, y)
	if err != nil {
		status := tileStatus(err)
		zap.L().Warn("api: tile fetch failed",
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", s.tiles.ContentType())
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func tileStatus(err error) int {
	switch {
	case errors.Is(err, tiles.ErrInvalidTile):
		return http.StatusBadRequest
	case errors.Is(err, tiles.ErrTileNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleTileStats(w http.ResponseWriter, _ *http.Request) {
	if s.tiles == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errTilesDisabled})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cache":   s.tiles.Cache().Stats(),
		"circuit": s.tiles.Breaker().State().String(),
	})
}
