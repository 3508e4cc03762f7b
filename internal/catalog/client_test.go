package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foxzi/tplsync/internal/config"
	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/template"
)

const testFeed = `{
  "applications": [
    {
      "Name": "duplicati",
      "Repository": "lscr.io/linuxserver/duplicati:latest",
      "Network": "bridge",
      "Category": "Backup: Cloud:",
      "Overview": "Backup software",
      "WebUI": "http://[IP]:[PORT:8200]",
      "Icon": "https://example.com/duplicati.png",
      "Date": 1704067200,
      "TemplateURL": "/templates/duplicati.xml",
      "Config": [
        {"@attributes": {"Name": "WebUI", "Target": "8200", "Type": "Port", "Default": "8200"}, "value": "8200"},
        {"Name": "Appdata", "Target": "/config", "Type": "Path", "Mode": "rw", "value": "/mnt/user/appdata/duplicati"}
      ]
    },
    {
      "Name": "Plex",
      "Repository": "plexinc/pms-docker",
      "Category": ["MediaServer:Video", "MediaApp:Video"],
      "Overview": "Stream your media",
      "template": "<Container><Name>Plex</Name><Repository>plexinc/pms-docker</Repository></Container>"
    },
    {
      "Name": "orphan",
      "Repository": "example/orphan",
      "TemplateURL": "/templates/missing.xml",
      "Config": {"Name": "Port", "Target": "80", "Type": "Port"}
    }
  ]
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, hits *atomic.Int32) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/feed.json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "tplsync-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, testFeed)
	})
	mux.HandleFunc("/templates/duplicati.xml", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<Container><Name>duplicati</Name><Repository>lscr.io/linuxserver/duplicati</Repository></Container>")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(config.CommunityConfig{
		FeedURL:   srv.URL + "/feed.json",
		Timeout:   5 * time.Second,
		CacheTTL:  time.Minute,
		UserAgent: "tplsync-test",
	}, testLogger())
	return srv, client
}

func TestNormalizeRepository(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"lscr.io/linuxserver/duplicati:latest", "linuxserver/duplicati"},
		{"docker.io/Library/Nginx", "library/nginx"},
		{"ghcr.io/home-assistant/home-assistant:stable", "home-assistant/home-assistant:stable"},
		{"  PlexInc/PMS-Docker  ", "plexinc/pms-docker"},
		{"quay.io/foo/bar:latest", "quay.io/foo/bar"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeRepository(tt.in); got != tt.want {
				t.Errorf("NormalizeRepository(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFeedDecoding(t *testing.T) {
	var feed Feed
	if err := json.Unmarshal([]byte(testFeed), &feed); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(feed.Applications) != 3 {
		t.Fatalf("applications = %d, want 3", len(feed.Applications))
	}

	dup := feed.Applications[0]
	if dup.Date != "1704067200" {
		t.Errorf("numeric Date = %q", dup.Date)
	}
	if len(dup.Config) != 2 {
		t.Fatalf("Config = %d entries, want 2", len(dup.Config))
	}
	if dup.Config[0].Attributes["Target"] != "8200" || dup.Config[0].Value != "8200" {
		t.Errorf("@attributes config = %+v", dup.Config[0])
	}
	if dup.Config[1].Attributes["Mode"] != "rw" || dup.Config[1].Value != "/mnt/user/appdata/duplicati" {
		t.Errorf("inline config = %+v", dup.Config[1])
	}

	if got := feed.Applications[1].Category; got != "MediaServer:Video MediaApp:Video" {
		t.Errorf("list Category = %q", got)
	}
	if len(feed.Applications[2].Config) != 1 {
		t.Errorf("single Config object = %d entries, want 1", len(feed.Applications[2].Config))
	}

	updated := dup.UpdatedAt()
	if updated == nil || !updated.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt() = %v", updated)
	}
}

func TestClient_FetchFeedCached(t *testing.T) {
	var hits atomic.Int32
	_, client := newTestServer(t, &hits)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.FetchFeed(ctx); err != nil {
			t.Fatalf("FetchFeed() error = %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("feed fetched %d times, want 1", hits.Load())
	}

	client.InvalidateCache()
	if _, err := client.FetchFeed(ctx); err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("feed fetched %d times after invalidation, want 2", hits.Load())
	}
}

func TestClient_FeedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: ErrFeedUnavailable,
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"applications": [`)
			},
			want: ErrFeedParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(config.CommunityConfig{FeedURL: srv.URL, Timeout: time.Second}, testLogger())
			_, err := client.FindByRepository(context.Background(), "any/repo")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_FindByRepository(t *testing.T) {
	var hits atomic.Int32
	_, client := newTestServer(t, &hits)
	ctx := context.Background()

	app, err := client.FindByRepository(ctx, "linuxserver/duplicati")
	if err != nil {
		t.Fatalf("FindByRepository() error = %v", err)
	}
	if app.Name != "duplicati" {
		t.Errorf("Name = %q", app.Name)
	}

	if _, err := client.FindByRepository(ctx, "docker.io/plexinc/PMS-docker:latest"); err != nil {
		t.Errorf("normalized lookup error = %v", err)
	}

	if _, err := client.FindByRepository(ctx, "nobody/nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing lookup error = %v, want ErrNotFound", err)
	}
}

func TestClient_Search(t *testing.T) {
	var hits atomic.Int32
	_, client := newTestServer(t, &hits)

	tests := []struct {
		query string
		want  int
	}{
		{"DUPLICATI", 1},
		{"media", 1},
		{"backup software", 1},
		{"plexinc", 1},
		{"o", 3},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			apps, err := client.Search(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(apps) != tt.want {
				t.Errorf("Search(%q) = %d results, want %d", tt.query, len(apps), tt.want)
			}
		})
	}
}

func TestClient_FindTemplateBodySources(t *testing.T) {
	var hits atomic.Int32
	srv, client := newTestServer(t, &hits)
	ctx := context.Background()

	// TemplateURL in the feed is relative to the test server
	feed, err := client.FetchFeed(ctx)
	if err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}
	for i := range feed.Applications {
		if url := feed.Applications[i].TemplateURL; url != "" {
			feed.Applications[i].TemplateURL = Text(srv.URL) + url
		}
	}

	tests := []struct {
		repo     string
		contains string
	}{
		{"linuxserver/duplicati", "<Repository>lscr.io/linuxserver/duplicati</Repository>"},
		{"plexinc/pms-docker", "<Container><Name>Plex</Name>"},
		{"example/orphan", `<Config Name="Port"`},
	}

	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			tpl, err := client.FindTemplate(ctx, tt.repo)
			if err != nil {
				t.Fatalf("FindTemplate() error = %v", err)
			}
			if tpl.Source != models.SourceCommunity || tpl.Status != models.TemplateStatusActive {
				t.Errorf("source/status = %s/%s", tpl.Source, tpl.Status)
			}
			if !strings.Contains(tpl.XMLContent, tt.contains) {
				t.Errorf("XMLContent = %s\nwant it to contain %s", tpl.XMLContent, tt.contains)
			}
		})
	}
}

func TestClient_FetchBodyNotFound(t *testing.T) {
	var hits atomic.Int32
	srv, client := newTestServer(t, &hits)

	if _, err := client.FetchBody(context.Background(), srv.URL+"/templates/missing.xml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchBody() error = %v, want ErrNotFound", err)
	}
}

func TestApp_BuildXML(t *testing.T) {
	app := &App{
		Name:       "duplicati",
		Repository: "linuxserver/duplicati",
		Network:    "bridge",
		Category:   "Backup:",
		Overview:   "Backup software",
		Config: ConfigList{
			{Attributes: map[string]string{"Name": "WebUI", "Type": "Port", "Target": "8200", "Default": "8200"}, Value: "8200"},
			{Attributes: map[string]string{"Name": "Appdata", "Type": "Path", "Target": "/config"}},
		},
	}

	out, err := app.BuildXML()
	if err != nil {
		t.Fatalf("BuildXML() error = %v", err)
	}

	rec, err := template.Extract(out)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rec == nil {
		t.Fatal("synthesized document has no container")
	}
	if rec.Fields.Name != "duplicati" || rec.Fields.Category != "Backup:" || rec.Fields.Description != "Backup software" {
		t.Errorf("fields = %+v", rec.Fields)
	}
	if len(rec.Configs) != 2 {
		t.Fatalf("configs = %d, want 2", len(rec.Configs))
	}
	if rec.Configs[0].Name != "WebUI" || rec.Configs[0].ActualValue != "8200" || rec.Configs[0].ConfigType != "Port" {
		t.Errorf("first config = %+v", rec.Configs[0])
	}
	if strings.Contains(out, "<Support>") {
		t.Error("empty optional elements should be omitted")
	}
}
