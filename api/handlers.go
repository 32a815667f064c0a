package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"monitor/logger"
	"monitor/query"

	"go.uber.org/zap"
)

// User-facing messages for the "no data" outcomes.
const (
	msgNoMetrics        = "No metrics available"
	msgNoMetricsInRange = "No metrics available for the specified time range"
	msgNotFound         = "Not found."
)

// MessageResponse is returned for "no data" outcomes.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is returned for failures.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse represents health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestID, _ := r.Context().Value(contextKeyRequestID).(string)
	logger.FromContext(r.Context(), s.log).Error("request failed",
		zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	respondJSON(w, status, ErrorResponse{Error: err.Error(), RequestID: requestID})
}

// respondNoData maps query.ErrNoData to a 404 with the matching message and
// reports whether err was such an outcome.
func respondNoData(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, query.ErrNoDataInRange):
		respondJSON(w, http.StatusNotFound, MessageResponse{Message: msgNoMetricsInRange})
	case errors.Is(err, query.ErrNoData):
		respondJSON(w, http.StatusNotFound, MessageResponse{Message: msgNoMetrics})
	default:
		return false
	}
	return true
}

// handleList handles GET /api/metrics?hours=H
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.queries.List(r.Context(), r.URL.Query().Get("hours"))
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, snaps)
}

// handleCollect handles POST /api/metrics/collect
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.RunOnce(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

// handleGet handles GET /api/metrics/{id}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusNotFound, MessageResponse{Message: msgNotFound})
		return
	}
	snap, err := s.queries.Get(r.Context(), id)
	if errors.Is(err, query.ErrNoData) {
		respondJSON(w, http.StatusNotFound, MessageResponse{Message: msgNotFound})
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		respondJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	}
}

// handleLatest handles GET /api/metrics/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.queries.Latest(r.Context())
	if err != nil {
		if respondNoData(w, err) {
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleStats handles GET /api/metrics/stats?hours=H
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.queries.Stats(r.Context(), r.URL.Query().Get("hours"))
	if err != nil {
		if respondNoData(w, err) {
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// handleSystemInfo handles GET /api/system/info
func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	if s.info == nil {
		s.respondError(w, r, http.StatusServiceUnavailable, errors.New("system info unavailable"))
		return
	}
	info, err := s.info.SystemInfo(r.Context())
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, code := "healthy", http.StatusOK
	if !s.ready.Load() {
		status, code = "starting", http.StatusServiceUnavailable
	}
	respondJSON(w, code, HealthResponse{Status: status, Timestamp: time.Now().UTC()})
}
