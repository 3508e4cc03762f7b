package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/tplsync/internal/models"
)

// SyncResponse is the response for POST /sync
type SyncResponse struct {
	Triggered bool                 `json:"triggered"`
	Runs      []*models.SyncJobRun `json:"runs,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// handleSync handles POST /api/v1/sync. With a background worker the sync is
// queued and 202 returned; otherwise it runs before the response is sent.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.worker != nil {
		triggered := s.worker.Trigger()
		s.logger.Info("sync requested via API", "queued", triggered)
		s.sendJSON(w, http.StatusAccepted, SyncResponse{Triggered: triggered})
		return
	}

	runs, err := s.syncer.RunAll(r.Context())
	resp := SyncResponse{Triggered: true}
	for _, run := range runs {
		if run != nil {
			resp.Runs = append(resp.Runs, run)
		}
	}
	if err != nil {
		resp.Error = err.Error()
		s.sendJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleListRuns handles GET /api/v1/sync/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)
	if limit == 0 {
		limit = 50
	}

	runs, total, err := s.runs.List(models.SyncRunFilter{
		JobType: q.Get("job_type"),
		Status:  q.Get("status"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.logger.Error("failed to list sync runs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list sync runs")
		return
	}

	s.sendJSON(w, http.StatusOK, ListResponse{
		Items:  runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetRun handles GET /api/v1/sync/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.runs.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get sync run", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get sync run")
		return
	}
	if run == nil {
		s.sendError(w, http.StatusNotFound, "Sync run not found")
		return
	}

	s.sendJSON(w, http.StatusOK, run)
}
