package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/tplsync/internal/apply"
	"github.com/foxzi/tplsync/internal/metrics"
	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/reconcile"
)

// ChoicesRequest is the request body for PUT /comparisons/{id}/choices
type ChoicesRequest struct {
	UserChoices map[string]string `json:"user_choices"`
	ManualEdits map[string]string `json:"manual_edits"`
}

// handleListComparisons handles GET /api/v1/comparisons
func (s *Server) handleListComparisons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)

	status := q.Get("status")
	switch status {
	case "", models.ComparisonPending, models.ComparisonReviewed, models.ComparisonApplied:
	default:
		s.sendError(w, http.StatusBadRequest, "status must be pending, reviewed or applied")
		return
	}

	comparisons, total, err := s.comparisons.List(models.ComparisonListFilter{
		Status:          status,
		LocalTemplateID: q.Get("local_template_id"),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		s.logger.Error("failed to list comparisons", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list comparisons")
		return
	}

	s.sendJSON(w, http.StatusOK, ListResponse{
		Items:  comparisons,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetComparison handles GET /api/v1/comparisons/{id}
func (s *Server) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.comparisons.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get comparison", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get comparison")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "Comparison not found")
		return
	}

	s.sendJSON(w, http.StatusOK, c)
}

// handleSubmitChoices handles PUT /api/v1/comparisons/{id}/choices
func (s *Server) handleSubmitChoices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ChoicesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := s.syncer.Review(r.Context(), id, req.UserChoices, req.ManualEdits)
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidChoice) {
			metrics.IncAPIErrors("validation")
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to save choices", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to save choices")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "Comparison not found")
		return
	}

	s.sendJSON(w, http.StatusOK, c)
}

// handlePreview handles GET /api/v1/comparisons/{id}/preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	preview, err := s.applier.Preview(r.Context(), id)
	if err != nil {
		s.sendApplyError(w, id, err)
		return
	}

	s.sendJSON(w, http.StatusOK, preview)
}

// handleDiff handles GET /api/v1/comparisons/{id}/diff
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	diff, err := s.applier.PreviewDiff(r.Context(), id)
	if err != nil {
		s.sendApplyError(w, id, err)
		return
	}

	s.sendJSON(w, http.StatusOK, diff)
}

// handleApply handles POST /api/v1/comparisons/{id}/apply
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	out, err := s.applier.Apply(r.Context(), id)
	if err != nil {
		s.sendApplyError(w, id, err)
		return
	}

	s.logger.Info("changes applied via API", "comparison", id, "template", out.Template.Name)
	s.sendJSON(w, http.StatusOK, out)
}

// handleRecompute handles POST /api/v1/comparisons/{id}/recompute
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.syncer.Recompute(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to recompute comparison", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to recompute comparison")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "Comparison not found")
		return
	}

	s.sendJSON(w, http.StatusOK, c)
}

// sendApplyError maps applier errors to responses
func (s *Server) sendApplyError(w http.ResponseWriter, id string, err error) {
	var backupErr *apply.BackupError
	var writeErr *apply.WriteError

	switch {
	case errors.Is(err, apply.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Comparison not found")
	case errors.Is(err, apply.ErrNotReviewed):
		metrics.IncAPIErrors("validation")
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apply.ErrValidation):
		metrics.IncAPIErrors("validation")
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &backupErr), errors.As(err, &writeErr):
		s.logger.Error("apply failed", "comparison", id, "error", err)
		metrics.IncAPIErrors("file")
		s.sendError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("apply failed", "comparison", id, "error", err)
		metrics.IncAPIErrors("internal")
		s.sendError(w, http.StatusInternalServerError, "Failed to apply changes")
	}
}
