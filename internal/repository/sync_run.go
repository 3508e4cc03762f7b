package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/tplsync/internal/models"
)

type SyncRunRepository struct {
	db Querier
}

func NewSyncRunRepository(db Querier) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

const syncRunColumns = `id, job_type, status, started_at, completed_at, results, COALESCE(error_message, ''), created_at`

func scanSyncRun(row rowScanner) (*models.SyncJobRun, error) {
	run := &models.SyncJobRun{}
	var completedAt sql.NullTime
	var results sql.NullString

	err := row.Scan(&run.ID, &run.JobType, &run.Status, &run.StartedAt, &completedAt, &results, &run.ErrorMessage, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if err := decodeJSON(results, &run.Results); err != nil {
		return nil, err
	}
	return run, nil
}

// Start records a new running job of the given type
func (r *SyncRunRepository) Start(jobType string) (*models.SyncJobRun, error) {
	run := &models.SyncJobRun{
		ID:        uuid.New().String(),
		JobType:   jobType,
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now(),
	}
	run.CreatedAt = run.StartedAt

	_, err := r.db.Exec(`
		INSERT INTO sync_job_runs (id, job_type, status, started_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.JobType, run.Status, run.StartedAt, run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}
	return run, nil
}

// Finish marks a run completed, or failed when runErr is not nil
func (r *SyncRunRepository) Finish(run *models.SyncJobRun, results map[string]int, runErr error) error {
	now := time.Now()
	run.CompletedAt = &now
	run.Results = results
	run.Status = models.SyncStatusCompleted
	run.ErrorMessage = ""
	if runErr != nil {
		run.Status = models.SyncStatusFailed
		run.ErrorMessage = runErr.Error()
	}

	encoded, err := encodeJSON(results)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		UPDATE sync_job_runs SET status = ?, completed_at = ?, results = ?, error_message = ?
		WHERE id = ?`,
		run.Status, run.CompletedAt, encoded, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// GetByID returns a run by ID
func (r *SyncRunRepository) GetByID(id string) (*models.SyncJobRun, error) {
	run, err := scanSyncRun(r.db.QueryRow(`SELECT `+syncRunColumns+` FROM sync_job_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Latest returns the most recent run of a job type
func (r *SyncRunRepository) Latest(jobType string) (*models.SyncJobRun, error) {
	run, err := scanSyncRun(r.db.QueryRow(
		`SELECT `+syncRunColumns+` FROM sync_job_runs WHERE job_type = ? ORDER BY started_at DESC LIMIT 1`,
		jobType,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs, newest first
func (r *SyncRunRepository) List(filter models.SyncRunFilter) ([]models.SyncJobRun, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.JobType != "" {
		where += " AND job_type = ?"
		args = append(args, filter.JobType)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sync_job_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + syncRunColumns + ` FROM sync_job_runs` + where + " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []models.SyncJobRun{}
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}

	return runs, total, rows.Err()
}

// CountOlderThan returns the number of runs started before the given time
func (r *SyncRunRepository) CountOlderThan(before time.Time) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sync_job_runs WHERE started_at < ?", before).Scan(&n)
	return n, err
}

// DeleteOlderThan deletes runs started before the given time
func (r *SyncRunRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM sync_job_runs WHERE started_at < ?", before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
