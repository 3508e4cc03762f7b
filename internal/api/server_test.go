package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/tplsync/internal/apply"
	"github.com/foxzi/tplsync/internal/backup"
	"github.com/foxzi/tplsync/internal/catalog"
	"github.com/foxzi/tplsync/internal/config"
	"github.com/foxzi/tplsync/internal/db"
	"github.com/foxzi/tplsync/internal/metrics"
	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/scanner"
	"github.com/foxzi/tplsync/internal/syncer"
)

const localXML = `<?xml version="1.0"?>
<Container version="2">
  <Name>duplicati</Name>
  <Repository>lscr.io/linuxserver/duplicati</Repository>
  <Network>bridge</Network>
  <Category>Backup:</Category>
  <Config Name="WebUI" Target="8200" Default="8200" Mode="tcp" Description="Web UI" Type="Port" Display="always" Required="true">8200</Config>
</Container>`

const communityXML = `<?xml version="1.0"?>
<Container version="2">
  <Name>duplicati</Name>
  <Repository>lscr.io/linuxserver/duplicati</Repository>
  <Network>host</Network>
  <Category>Backup:</Category>
  <Config Name="WebUI" Target="8200" Default="8200" Mode="tcp" Description="Web UI" Type="Port" Display="always" Required="true">8200</Config>
</Container>`

type fakeCatalog struct{}

func (fakeCatalog) FindTemplate(ctx context.Context, repo string) (*models.Template, error) {
	if catalog.NormalizeRepository(repo) != "linuxserver/duplicati" {
		return nil, catalog.ErrNotFound
	}
	return &models.Template{
		Name:                "duplicati",
		Repository:          "lscr.io/linuxserver/duplicati",
		Network:             "host",
		Category:            "Backup:",
		XMLContent:          communityXML,
		Source:              models.SourceCommunity,
		Status:              models.TemplateStatusActive,
		CommunityRepository: "lscr.io/linuxserver/duplicati",
	}, nil
}

type fakeTrigger struct {
	calls int
}

func (f *fakeTrigger) Trigger() bool {
	f.calls++
	return f.calls == 1
}

type testServer struct {
	server *Server
	path   string
}

func setupTestServer(t *testing.T, apiKey string, worker Trigger) *testServer {
	t.Helper()

	database, err := db.New(db.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	templatesDir := filepath.Join(dir, "templates")
	if err := os.MkdirAll(templatesDir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(templatesDir, "my-duplicati.xml")
	if err := os.WriteFile(path, []byte(localXML), 0644); err != nil {
		t.Fatal(err)
	}

	index, err := backup.OpenIndex(filepath.Join(dir, "backups.db"))
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	t.Cleanup(func() { index.Close() })

	s := syncer.New(database.DB, scanner.New(templatesDir, logger), fakeCatalog{}, logger)
	a := apply.New(database.DB, backup.Files{}, backup.NewManager(filepath.Join(dir, "backups"), index, logger), logger)

	server := NewServer(ServerOptions{
		DB:      database.DB,
		Syncer:  s,
		Applier: a,
		Worker:  worker,
		Config:  &config.ServerConfig{ListenAddr: ":0", APIKey: apiKey},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Logger:  logger,
		Version: "test",
	})
	return &testServer{server: server, path: path}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// synced runs a full sync and returns the id of the resulting comparison
func (ts *testServer) synced(t *testing.T) string {
	t.Helper()

	w := ts.do(t, "POST", "/api/v1/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SyncResponse
	decode(t, w, &resp)
	if len(resp.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(resp.Runs))
	}

	w = ts.do(t, "GET", "/api/v1/comparisons", nil)
	var list struct {
		Items []models.Comparison `json:"items"`
		Total int                 `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 {
		t.Fatalf("comparisons = %d, want 1", list.Total)
	}
	return list.Items[0].ID
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t, "", nil)

	w := ts.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	decode(t, w, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := setupTestServer(t, "test-api-key", nil)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no key", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "test-api-key", http.StatusOK},
		{"bearer", "Authorization", "Bearer test-api-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/templates", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			ts.server.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	// Health stays open
	if w := ts.do(t, "GET", "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health Status = %d", w.Code)
	}
}

func TestTemplateEndpoints(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	ts.synced(t)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantTotal int
	}{
		{"all", "", http.StatusOK, 2},
		{"local", "?source=local", http.StatusOK, 1},
		{"search", "?search=dupli&sort=updated_at&direction=desc", http.StatusOK, 2},
		{"no match", "?search=plex", http.StatusOK, 0},
		{"bad source", "?source=remote", http.StatusBadRequest, 0},
		{"bad status", "?status=gone", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, "GET", "/api/v1/templates"+tt.query, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var list struct {
				Items []models.Template `json:"items"`
				Total int               `json:"total"`
			}
			decode(t, w, &list)
			if list.Total != tt.wantTotal || len(list.Items) != tt.wantTotal {
				t.Errorf("total = %d, items = %d, want %d", list.Total, len(list.Items), tt.wantTotal)
			}
			for _, item := range list.Items {
				if item.XMLContent != "" {
					t.Error("list includes xml_content")
				}
			}
		})
	}

	w := ts.do(t, "GET", "/api/v1/templates?source=local", nil)
	var list struct {
		Items []models.Template `json:"items"`
	}
	decode(t, w, &list)

	w = ts.do(t, "GET", "/api/v1/templates/"+list.Items[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get Status = %d", w.Code)
	}
	var detail struct {
		models.Template
		Configs    []models.TemplateConfig `json:"configs"`
		Comparison *models.Comparison      `json:"comparison"`
	}
	decode(t, w, &detail)
	if detail.XMLContent == "" || len(detail.Configs) != 1 || detail.Comparison == nil {
		t.Errorf("detail = xml %d bytes, %d configs, comparison %v",
			len(detail.XMLContent), len(detail.Configs), detail.Comparison)
	}

	if w := ts.do(t, "GET", "/api/v1/templates/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing Status = %d, want 404", w.Code)
	}
}

func TestApplyFlow(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	id := ts.synced(t)
	base := "/api/v1/comparisons/" + id

	w := ts.do(t, "GET", base, nil)
	var c models.Comparison
	decode(t, w, &c)
	if c.Status != models.ComparisonPending || len(c.Differences) != 1 {
		t.Fatalf("comparison = status %s, %d differences", c.Status, len(c.Differences))
	}

	if w := ts.do(t, "POST", base+"/apply", nil); w.Code != http.StatusConflict {
		t.Errorf("apply pending Status = %d, want 409", w.Code)
	}

	w = ts.do(t, "PUT", base+"/choices", ChoicesRequest{UserChoices: map[string]string{"network": "maybe"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid choice Status = %d, want 400", w.Code)
	}

	w = ts.do(t, "PUT", base+"/choices", ChoicesRequest{UserChoices: map[string]string{}})
	if w.Code != http.StatusOK {
		t.Fatalf("choices Status = %d", w.Code)
	}
	w = ts.do(t, "POST", base+"/apply", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("apply without choices Status = %d, want 422", w.Code)
	}
	var errResp ErrorResponse
	decode(t, w, &errResp)
	if errResp.Error != apply.ErrNoChoices.Error() {
		t.Errorf("error = %q", errResp.Error)
	}

	w = ts.do(t, "PUT", base+"/choices", ChoicesRequest{
		UserChoices: map[string]string{"network": "community", "unknown": "community"},
		ManualEdits: map[string]string{"network": "custom_network"},
	})
	decode(t, w, &c)
	if c.Status != models.ComparisonReviewed || len(c.UserChoices) != 1 {
		t.Fatalf("reviewed comparison = %+v", c)
	}

	w = ts.do(t, "GET", base+"/preview", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "custom_network") {
		t.Errorf("preview Status = %d, body = %s", w.Code, w.Body.String())
	}

	w = ts.do(t, "GET", base+"/diff", nil)
	var diff apply.Diff
	decode(t, w, &diff)
	if !diff.HasChanges || !strings.Contains(diff.Diff, "+  <Network>custom_network</Network>") {
		t.Errorf("diff = %+v", diff)
	}

	w = ts.do(t, "POST", base+"/apply", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("apply Status = %d, body = %s", w.Code, w.Body.String())
	}
	data, err := os.ReadFile(ts.path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<Network>custom_network</Network>") {
		t.Errorf("file not updated:\n%s", data)
	}

	w = ts.do(t, "POST", base+"/recompute", nil)
	if w.Code != http.StatusOK {
		t.Errorf("recompute Status = %d", w.Code)
	}

	for _, path := range []string{"", "/preview", "/diff"} {
		if w := ts.do(t, "GET", "/api/v1/comparisons/missing"+path, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET missing%s Status = %d, want 404", path, w.Code)
		}
	}
	for _, path := range []string{"/apply", "/recompute"} {
		if w := ts.do(t, "POST", "/api/v1/comparisons/missing"+path, nil); w.Code != http.StatusNotFound {
			t.Errorf("POST missing%s Status = %d, want 404", path, w.Code)
		}
	}
	if w := ts.do(t, "PUT", "/api/v1/comparisons/missing/choices", ChoicesRequest{}); w.Code != http.StatusNotFound {
		t.Errorf("PUT missing choices Status = %d, want 404", w.Code)
	}
}

func TestComparisonListFilter(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	ts.synced(t)

	tests := []struct {
		query string
		code  int
		total int
	}{
		{"?status=pending", http.StatusOK, 1},
		{"?status=applied", http.StatusOK, 0},
		{"?status=done", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		w := ts.do(t, "GET", "/api/v1/comparisons"+tt.query, nil)
		if w.Code != tt.code {
			t.Errorf("%s Status = %d, want %d", tt.query, w.Code, tt.code)
			continue
		}
		if tt.code != http.StatusOK {
			continue
		}
		var list ListResponse
		decode(t, w, &list)
		if list.Total != tt.total {
			t.Errorf("%s total = %d, want %d", tt.query, list.Total, tt.total)
		}
	}
}

func TestSyncRuns(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	ts.synced(t)

	w := ts.do(t, "GET", "/api/v1/sync/runs?job_type="+models.JobTypeLocalSync, nil)
	var list struct {
		Items []models.SyncJobRun `json:"items"`
		Total int                 `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 || list.Items[0].Status != models.SyncStatusCompleted {
		t.Fatalf("runs = %+v", list)
	}
	if list.Items[0].Results["created"] != 1 {
		t.Errorf("results = %v", list.Items[0].Results)
	}

	w = ts.do(t, "GET", "/api/v1/sync/runs/"+list.Items[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get run Status = %d", w.Code)
	}
	if w := ts.do(t, "GET", "/api/v1/sync/runs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing run Status = %d, want 404", w.Code)
	}
}

func TestSyncWithWorker(t *testing.T) {
	trigger := &fakeTrigger{}
	ts := setupTestServer(t, "", trigger)

	tests := []struct {
		name      string
		triggered bool
	}{
		{"queued", true},
		{"already pending", false},
	}
	for _, tt := range tests {
		w := ts.do(t, "POST", "/api/v1/sync", nil)
		if w.Code != http.StatusAccepted {
			t.Errorf("%s: Status = %d, want 202", tt.name, w.Code)
		}
		var resp SyncResponse
		decode(t, w, &resp)
		if resp.Triggered != tt.triggered {
			t.Errorf("%s: triggered = %v, want %v", tt.name, resp.Triggered, tt.triggered)
		}
	}

	// Nothing ran synchronously
	w := ts.do(t, "GET", "/api/v1/sync/runs", nil)
	var list ListResponse
	decode(t, w, &list)
	if list.Total != 0 {
		t.Errorf("runs = %d, want 0", list.Total)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.SetGlobal(metrics.New())
	t.Cleanup(func() { metrics.SetGlobal(nil) })

	ts := setupTestServer(t, "secret", nil)

	// Metrics are served without the API key
	w := ts.do(t, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tplsync_backups") {
		t.Errorf("metrics output missing tplsync_backups")
	}

	ts.do(t, "GET", "/health", nil)
	w = ts.do(t, "GET", "/metrics", nil)
	if !strings.Contains(w.Body.String(), "tplsync_api_requests_total") {
		t.Errorf("request metrics not recorded:\n%s", w.Body.String())
	}
}
