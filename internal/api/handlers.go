package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/foxzi/tplsync/internal/metrics"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Uptime    string         `json:"uptime"`
	Templates map[string]int `json:"templates,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse wraps a page of items
type ListResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.templates.CountBySource()
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		s.sendJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unavailable",
			Version: s.version,
			Uptime:  time.Since(s.startTime).String(),
		})
		return
	}

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Uptime:    time.Since(s.startTime).String(),
		Templates: counts,
	})
}

// handleMetrics serves the Prometheus registry
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := metrics.Global()
	if m == nil {
		s.sendError(w, http.StatusNotFound, "Metrics disabled")
		return
	}
	m.Handler().ServeHTTP(w, r)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// pagination reads limit and offset query parameters. Invalid values are ignored.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit < 0 {
		limit = 0
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
