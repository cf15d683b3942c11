package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/scorer"
)

type propertyResponse struct {
	Property  model.Property `json:"property"`
	UserScore int            `json:"user_score"`
	MaxScore  int            `json:"max_score"`
	Color     scorer.Color   `json:"color"`
}

type toggleResponse struct {
	propertyResponse
	Changed bool `json:"changed"`
}

func newPropertyResponse(p model.Property) (propertyResponse, error) {
	score := scorer.UserScore(p.Tasks)
	color, err := scorer.ColorForScore(score, scorer.DefaultMaxScore)
	if err != nil {
		return propertyResponse{}, err
	}
	return propertyResponse{Property: p, UserScore: score, MaxScore: scorer.DefaultMaxScore, Color: color}, nil
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	resp, err := newPropertyResponse(s.holder.Snapshot())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	taskID, err := strconv.Atoi(chi.URLParam(r, "taskID"))
	if err != nil {
		writeBadRequest(w, "task id must be an integer")
		return
	}

	p, changed := s.holder.Toggle(r.Context(), taskID)
	resp, err := newPropertyResponse(p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{propertyResponse: resp, Changed: changed})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.holder.History(r.Context(), limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if events == nil {
		events = []model.ToggleEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleStream pushes the current snapshot, then every new one, as
// server-sent events until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	updates, cancel := s.holder.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(p model.Property) bool {
		resp, err := newPropertyResponse(p)
		if err != nil {
			return false
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: property\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(s.holder.Snapshot()) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-updates:
			if !ok || !send(p) {
				return
			}
		}
	}
}

type scoreResponse struct {
	PropertyID        string        `json:"property_id"`
	UserScore         int           `json:"user_score"`
	MaxScore          int           `json:"max_score"`
	UserColor         scorer.Color  `json:"user_color"`
	NeighborhoodScore *int          `json:"neighborhood_score"`
	NeighborhoodColor *scorer.Color `json:"neighborhood_color"`
	Neighbors         int           `json:"neighbors"`
	RadiusMiles       float64       `json:"radius_miles"`
}

// handleScore reports the user and neighborhood scores. With no neighbors in
// range the neighborhood fields are null.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	p := s.holder.Snapshot()
	nearby, err := geo.NeighborsWithin(p.Center, s.Neighbors(), s.opts.NeighborhoodRadiusMiles)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	resp := scoreResponse{
		PropertyID:  p.ID,
		MaxScore:    scorer.DefaultMaxScore,
		RadiusMiles: s.opts.NeighborhoodRadiusMiles,
	}

	summary, err := scorer.Summarize(p, nearby)
	switch {
	case errors.Is(err, scorer.ErrEmptyNeighborhood):
		resp.UserScore = scorer.UserScore(p.Tasks)
		if resp.UserColor, err = scorer.ColorForScore(resp.UserScore, scorer.DefaultMaxScore); err != nil {
			writeFailure(w, r, err)
			return
		}
	case err != nil:
		writeFailure(w, r, err)
		return
	default:
		resp.UserScore = summary.UserScore
		resp.UserColor = summary.UserColor
		resp.NeighborhoodScore = &summary.NeighborhoodScore
		resp.NeighborhoodColor = &summary.NeighborhoodColor
		resp.Neighbors = summary.Neighbors
		if s.metrics != nil {
			s.metrics.NeighborhoodScore.Set(float64(summary.NeighborhoodScore))
		}
	}

	zap.L().Debug("api: scored",
		zap.String("property_id", p.ID),
		zap.Int("user_score", resp.UserScore),
		zap.Int("neighbors", resp.Neighbors),
	)
	writeJSON(w, http.StatusOK, resp)
}

type neighborView struct {
	model.Neighbor
	Color         scorer.Color `json:"color"`
	DistanceMiles float64      `json:"distance_miles"`
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	p := s.holder.Snapshot()
	nearby, err := geo.NeighborsWithin(p.Center, s.Neighbors(), s.opts.NeighborhoodRadiusMiles)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	out := make([]neighborView, 0, len(nearby))
	for _, n := range nearby {
		color, err := scorer.ColorForScore(n.Completion, scorer.DefaultMaxScore)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		out = append(out, neighborView{
			Neighbor:      n,
			Color:         color,
			DistanceMiles: geo.HaversineMiles(p.Center, n.Center),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"radius_miles": s.opts.NeighborhoodRadiusMiles,
		"neighbors":    out,
	})
}
