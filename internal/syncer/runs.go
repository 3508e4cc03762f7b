package syncer

import (
	"context"
	"fmt"

	"github.com/foxzi/tplsync/internal/metrics"
	"github.com/foxzi/tplsync/internal/models"
)

// record runs fn as a sync job of jobType and stores the run with its results
func (s *Syncer) record(ctx context.Context, jobType string, fn func(context.Context) (Results, error)) (*models.SyncJobRun, error) {
	run, err := s.runs.Start(jobType)
	if err != nil {
		return nil, err
	}

	results, runErr := fn(ctx)
	if err := s.runs.Finish(run, results, runErr); err != nil {
		s.logger.Error("failed to record sync run", "job_type", jobType, "run", run.ID, "error", err)
	}
	metrics.ObserveSyncRun(jobType, run.Status, run.Duration().Seconds())

	if runErr != nil {
		s.logger.Error("sync job failed", "job_type", jobType, "run", run.ID, "error", runErr)
		return run, fmt.Errorf("%s failed: %w", jobType, runErr)
	}
	return run, nil
}

// RunLocal runs a recorded local sync
func (s *Syncer) RunLocal(ctx context.Context) (*models.SyncJobRun, error) {
	return s.record(ctx, models.JobTypeLocalSync, s.SyncLocal)
}

// RunCommunity runs a recorded community sync
func (s *Syncer) RunCommunity(ctx context.Context) (*models.SyncJobRun, error) {
	return s.record(ctx, models.JobTypeCommunitySync, s.SyncCommunity)
}

// RunComparisons runs a recorded comparison update for one template, or all
// when templateID is empty
func (s *Syncer) RunComparisons(ctx context.Context, templateID string) (*models.SyncJobRun, error) {
	return s.record(ctx, models.JobTypeComparisonUpdate, func(ctx context.Context) (Results, error) {
		return s.UpdateComparisons(ctx, templateID)
	})
}

// RunAll runs a local sync followed by a community sync. The community sync
// is skipped when the local sync fails.
func (s *Syncer) RunAll(ctx context.Context) ([]*models.SyncJobRun, error) {
	local, err := s.RunLocal(ctx)
	runs := []*models.SyncJobRun{local}
	if err != nil {
		return runs, err
	}

	community, err := s.RunCommunity(ctx)
	runs = append(runs, community)
	return runs, err
}
