package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/tplsync/internal/models"
)

// TemplateResponse is the response for GET /templates/{id}
type TemplateResponse struct {
	*models.Template
	Configs    []models.TemplateConfig `json:"configs"`
	Comparison *models.Comparison      `json:"comparison,omitempty"`
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)

	source := q.Get("source")
	switch source {
	case "", models.SourceLocal, models.SourceCommunity:
	default:
		s.sendError(w, http.StatusBadRequest, "source must be local or community")
		return
	}

	status := q.Get("status")
	switch status {
	case "", models.TemplateStatusActive, models.TemplateStatusInactive:
	default:
		s.sendError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}

	templates, total, err := s.templates.List(models.TemplateListFilter{
		Source:    source,
		Status:    status,
		Search:    q.Get("search"),
		Sort:      q.Get("sort"),
		Direction: q.Get("direction"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	// Documents are only returned by the detail endpoint
	for i := range templates {
		templates[i].XMLContent = ""
	}

	s.sendJSON(w, http.StatusOK, ListResponse{
		Items:  templates,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.templates.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get template", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	configs, err := s.configs.ListByTemplate(id)
	if err != nil {
		s.logger.Error("failed to list template configs", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}

	resp := TemplateResponse{Template: t, Configs: configs}
	if t.IsLocal() {
		resp.Comparison, err = s.comparisons.GetByLocalTemplate(id)
		if err != nil {
			s.logger.Error("failed to get comparison", "template", id, "error", err)
		}
	}

	s.sendJSON(w, http.StatusOK, resp)
}
