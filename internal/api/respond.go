package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/resilience"
)

type errorBody struct {
	Error   string                 `json:"error"`
	Kind    resilience.FailureKind `json:"kind,omitempty"`
	Message string                 `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeFailure classifies err and reports it with the matching user message.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := resilience.Classify(err)
	status := statusForKind(kind)
	zap.L().Warn("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("kind", string(kind)),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind, Message: kind.Message()})
}

func statusForKind(k resilience.FailureKind) int {
	switch k {
	case resilience.FailurePermission:
		return http.StatusForbidden
	case resilience.FailureTimeout:
		return http.StatusGatewayTimeout
	case resilience.FailureFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
