package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/comparisons/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	r.Post("/api/v1/comparisons/{id}/apply", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	return r
}

func TestHTTPMiddleware(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	router := newTestRouter()

	tests := []struct {
		method string
		path   string
		route  string
		status string
	}{
		{http.MethodGet, "/api/v1/comparisons/0b8f9a52-4a2c-4b8e-9a55-5d2f1c1f6e01", "/api/v1/comparisons/{id}", "200"},
		{http.MethodGet, "/api/v1/comparisons/another", "/api/v1/comparisons/{id}", "200"},
		{http.MethodPost, "/api/v1/comparisons/x/apply", "/api/v1/comparisons/{id}/apply", "409"},
		{http.MethodGet, "/no/such/route", unmatchedRoute, "404"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
	}

	if got := counterValue(t, m.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/comparisons/{id}", "200")); got != 2 {
		t.Errorf("comparison requests = %v, want 2", got)
	}
	for _, tt := range tests[2:] {
		if got := counterValue(t, m.APIRequestsTotal.WithLabelValues(tt.method, tt.route, tt.status)); got != 1 {
			t.Errorf("requests{%s %s %s} = %v, want 1", tt.method, tt.route, tt.status, got)
		}
	}
}

func TestHTTPMiddlewareNoMetrics(t *testing.T) {
	SetGlobal(nil)

	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/comparisons/1", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
