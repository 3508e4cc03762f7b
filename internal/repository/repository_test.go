package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/foxzi/tplsync/internal/db"
	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/reconcile"
	"github.com/foxzi/tplsync/internal/template"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.New(db.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { database.Close() })
	return database.DB
}

func createTemplate(t *testing.T, repo *TemplateRepository, name, source string) *models.Template {
	t.Helper()
	tmpl := &models.Template{
		Name:       name,
		Repository: "lscr.io/linuxserver/" + name,
		Network:    "bridge",
		Category:   "Tools:",
		XMLContent: "<Container><Name>" + name + "</Name></Container>",
		Source:     source,
	}
	if err := repo.Create(tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return tmpl
}

func TestTemplateRepository_CRUD(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))

	tmpl := createTemplate(t, repo, "duplicati", models.SourceLocal)
	if tmpl.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}
	if tmpl.Status != models.TemplateStatusActive {
		t.Errorf("Status = %q, want active", tmpl.Status)
	}

	got, err := repo.GetByID(tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil || got.Name != "duplicati" || got.Network != "bridge" {
		t.Fatalf("GetByID() = %+v", got)
	}
	if got.LastUpdatedAt != nil {
		t.Errorf("LastUpdatedAt = %v, want nil", got.LastUpdatedAt)
	}

	now := time.Now()
	got.Network = "host"
	got.LastUpdatedAt = &now
	got.NotInCommunity = true
	if err := repo.Update(got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	updated, err := repo.GetByRepository(tmpl.Repository, models.SourceLocal)
	if err != nil {
		t.Fatalf("GetByRepository() error = %v", err)
	}
	if updated.Network != "host" || !updated.NotInCommunity || updated.LastUpdatedAt == nil {
		t.Errorf("updated template = %+v", updated)
	}

	missing, err := repo.GetByID("missing")
	if err != nil || missing != nil {
		t.Errorf("GetByID(missing) = %v, %v; want nil, nil", missing, err)
	}

	other, err := repo.GetByRepository(tmpl.Repository, models.SourceCommunity)
	if err != nil || other != nil {
		t.Errorf("GetByRepository(community) = %v, %v; want nil, nil", other, err)
	}

	if err := repo.Delete(tmpl.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted, _ := repo.GetByID(tmpl.ID); deleted != nil {
		t.Error("template still exists after Delete()")
	}
}

func TestTemplateRepository_UniqueRepositoryPerSource(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))

	createTemplate(t, repo, "sonarr", models.SourceLocal)
	createTemplate(t, repo, "sonarr", models.SourceCommunity)

	dup := &models.Template{Name: "sonarr", Repository: "lscr.io/linuxserver/sonarr", Source: models.SourceLocal}
	if err := repo.Create(dup); err == nil {
		t.Error("Create() of duplicate repository and source should fail")
	}
}

func TestTemplateRepository_List(t *testing.T) {
	repo := NewTemplateRepository(setupTestDB(t))

	createTemplate(t, repo, "sonarr", models.SourceLocal)
	radarr := createTemplate(t, repo, "radarr", models.SourceLocal)
	createTemplate(t, repo, "lidarr", models.SourceLocal)
	createTemplate(t, repo, "radarr", models.SourceCommunity)

	if err := repo.UpdateStatus(radarr.ID, models.TemplateStatusInactive); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	tests := []struct {
		name      string
		filter    models.TemplateListFilter
		wantNames []string
		wantTotal int
	}{
		{"all local", models.TemplateListFilter{Source: models.SourceLocal}, []string{"lidarr", "radarr", "sonarr"}, 3},
		{"active local", models.TemplateListFilter{Source: models.SourceLocal, Status: models.TemplateStatusActive}, []string{"lidarr", "sonarr"}, 2},
		{"search", models.TemplateListFilter{Search: "radarr"}, []string{"radarr", "radarr"}, 2},
		{"desc", models.TemplateListFilter{Source: models.SourceLocal, Direction: "desc"}, []string{"sonarr", "radarr", "lidarr"}, 3},
		{"paged", models.TemplateListFilter{Source: models.SourceLocal, Limit: 1, Offset: 1}, []string{"radarr"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates, total, err := repo.List(tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			names := make([]string, 0, len(templates))
			for _, tmpl := range templates {
				names = append(names, tmpl.Name)
			}
			if diff := cmp.Diff(tt.wantNames, names); diff != "" {
				t.Errorf("List() names mismatch (-want +got):\n%s", diff)
			}
		})
	}

	syncable, err := repo.ListSyncable()
	if err != nil {
		t.Fatalf("ListSyncable() error = %v", err)
	}
	if len(syncable) != 2 {
		t.Errorf("ListSyncable() = %d templates, want 2", len(syncable))
	}

	counts, err := repo.CountBySource()
	if err != nil {
		t.Fatalf("CountBySource() error = %v", err)
	}
	want := map[string]int{"local_active": 2, "local_inactive": 1, "community_active": 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountBySource() mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigRepository_Replace(t *testing.T) {
	database := setupTestDB(t)
	tmpl := createTemplate(t, NewTemplateRepository(database), "duplicati", models.SourceLocal)
	repo := NewConfigRepository(database)

	entries := []template.ConfigEntry{
		{Name: "WebUI", ConfigType: "Port", Target: "8200", Required: true, Display: "always", OrderIndex: 0},
		{Name: "Appdata", ConfigType: "Path", Target: "/config", OrderIndex: 2},
	}
	if err := repo.Replace(tmpl.ID, entries); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	configs, err := repo.ListByTemplate(tmpl.ID)
	if err != nil {
		t.Fatalf("ListByTemplate() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("ListByTemplate() = %d configs, want 2", len(configs))
	}
	if configs[0].Name != "WebUI" || !configs[0].Required || configs[0].TemplateID != tmpl.ID {
		t.Errorf("configs[0] = %+v", configs[0])
	}
	if configs[1].Display != template.DefaultDisplay || configs[1].OrderIndex != 2 {
		t.Errorf("configs[1] = %+v, want default display and source order", configs[1])
	}

	if err := repo.Replace(tmpl.ID, entries[:1]); err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}
	if n, _ := repo.Count(tmpl.ID); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	dup := []template.ConfigEntry{{Name: "A"}, {Name: "A"}}
	if err := repo.Replace(tmpl.ID, dup); err == nil {
		t.Error("Replace() with duplicate names should violate the unique constraint")
	}
}

func TestComparisonRepository(t *testing.T) {
	database := setupTestDB(t)
	templates := NewTemplateRepository(database)
	local := createTemplate(t, templates, "duplicati", models.SourceLocal)
	community := createTemplate(t, templates, "duplicati", models.SourceCommunity)
	repo := NewComparisonRepository(database)

	diffs := reconcile.Differences{}
	diffs.Add(reconcile.BasicField{Field: template.FieldNetwork, Label: "Network", Local: "bridge", Community: "host"})

	now := time.Now()
	cmpRecord := &models.Comparison{
		LocalTemplateID:     local.ID,
		CommunityTemplateID: community.ID,
		Differences:         diffs,
		LastComparedAt:      &now,
	}
	if err := repo.Create(cmpRecord); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if cmpRecord.Status != models.ComparisonPending {
		t.Errorf("Status = %q, want pending", cmpRecord.Status)
	}

	dup := &models.Comparison{LocalTemplateID: local.ID, CommunityTemplateID: community.ID}
	if err := repo.Create(dup); err == nil {
		t.Error("Create() of duplicate pair should fail")
	}

	got, err := repo.GetByPair(local.ID, community.ID)
	if err != nil {
		t.Fatalf("GetByPair() error = %v", err)
	}
	if got == nil || got.LocalName != "duplicati" {
		t.Fatalf("GetByPair() = %+v", got)
	}
	if diff := cmp.Diff(diffs, got.Differences); diff != "" {
		t.Errorf("stored differences mismatch (-want +got):\n%s", diff)
	}
	if got.UserChoices == nil || got.ManualEdits == nil {
		t.Error("choice maps should decode to empty maps")
	}

	got.Status = models.ComparisonReviewed
	got.UserChoices = map[string]string{"network": "community"}
	got.ManualEdits = map[string]string{"network": "custom"}
	if err := repo.Update(got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	reviewed, _, err := repo.List(models.ComparisonListFilter{Status: models.ComparisonReviewed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(reviewed) != 1 || reviewed[0].UserChoices["network"] != "community" || reviewed[0].ManualEdits["network"] != "custom" {
		t.Errorf("List(reviewed) = %+v", reviewed)
	}

	byLocal, err := repo.GetByLocalTemplate(local.ID)
	if err != nil || byLocal == nil || byLocal.ID != cmpRecord.ID {
		t.Errorf("GetByLocalTemplate() = %v, %v", byLocal, err)
	}

	counts, err := repo.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[models.ComparisonReviewed] != 1 {
		t.Errorf("CountByStatus() = %v", counts)
	}

	// Deleting the local template cascades
	if err := templates.Delete(local.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gone, _ := repo.GetByID(cmpRecord.ID); gone != nil {
		t.Error("comparison should be deleted with its local template")
	}
}

func TestSyncRunRepository(t *testing.T) {
	repo := NewSyncRunRepository(setupTestDB(t))

	run, err := repo.Start(models.JobTypeLocalSync)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := repo.Finish(run, map[string]int{"created": 2}, nil); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	failed, err := repo.Start(models.JobTypeCommunitySync)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := repo.Finish(failed, nil, sql.ErrConnDone); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err := repo.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.SyncStatusCompleted || got.Results["created"] != 2 || got.CompletedAt == nil {
		t.Errorf("GetByID() = %+v", got)
	}

	latest, err := repo.Latest(models.JobTypeCommunitySync)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Status != models.SyncStatusFailed || latest.ErrorMessage == "" {
		t.Errorf("Latest() = %+v, want failed run with message", latest)
	}

	runs, total, err := repo.List(models.SyncRunFilter{Status: models.SyncStatusCompleted})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("List(completed) = %d runs, total %d", len(runs), total)
	}

	n, err := repo.CountOlderThan(time.Now().Add(24 * time.Hour))
	if err != nil || n != 2 {
		t.Errorf("CountOlderThan() = %d, %v; want 2", n, err)
	}
	deleted, err := repo.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil || deleted != 0 {
		t.Errorf("DeleteOlderThan(past) = %d, %v; want 0", deleted, err)
	}
	deleted, err = repo.DeleteOlderThan(time.Now().Add(24 * time.Hour))
	if err != nil || deleted != 2 {
		t.Errorf("DeleteOlderThan(future) = %d, %v; want 2", deleted, err)
	}
}
