package models

import "time"

// Sync job types
const (
	JobTypeLocalSync        = "local_sync"
	JobTypeCommunitySync    = "community_sync"
	JobTypeComparisonUpdate = "comparison_update"
)

// Sync job statuses
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncJobRun records one sync invocation
type SyncJobRun struct {
	ID           string         `json:"id"`
	JobType      string         `json:"job_type"`
	Status       string         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Results      map[string]int `json:"results,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Duration returns how long the run took, or has been running so far
func (r *SyncJobRun) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// IsFinished reports whether the run completed or failed
func (r *SyncJobRun) IsFinished() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}

// SyncRunFilter for filtering sync runs
type SyncRunFilter struct {
	JobType string
	Status  string
	Limit   int
	Offset  int
}
