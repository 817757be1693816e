package repository

import (
	"context"
	"errors"
	"time"

	scraperundomain "github.com/jobsift/jobsift/internal/scraperun/domain"
	"github.com/jobsift/jobsift/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) scraperundomain.Repository {
	return &repo{db: conn}
}

func (r *repo) GetByRunID(ctx context.Context, runID string) (*scraperundomain.ScrapeRun, error) {
	var run scraperundomain.ScrapeRun
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// Start opens the run row, or reclaims the existing row for a re-submitted
// run id. Concurrent starts of the same run id resolve through the unique
// index to a single row.
func (r *repo) Start(ctx context.Context, run *scraperundomain.ScrapeRun) (*scraperundomain.ScrapeRun, error) {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		existing, findErr := r.GetByRunID(ctx, run.RunID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		if existing.Status == scraperundomain.RunStatusCompleted {
			return existing, nil
		}
		if updateErr := r.db.WithContext(ctx).Model(&scraperundomain.ScrapeRun{}).
			Where("run_id = ?", run.RunID).
			Updates(map[string]any{
				"status":        scraperundomain.RunStatusRunning,
				"jobs_found":    run.JobsFound,
				"error_message": "",
				"started_at":    run.StartedAt,
				"updated_at":    run.StartedAt,
			}).Error; updateErr != nil {
			return nil, updateErr
		}
		return r.GetByRunID(ctx, run.RunID)
	}
	return run, nil
}

func (r *repo) Complete(ctx context.Context, runID string, created, merged, rejected int, rejections map[string]any, at time.Time) error {
	return r.db.WithContext(ctx).Model(&scraperundomain.ScrapeRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"status":        scraperundomain.RunStatusCompleted,
			"jobs_created":  created,
			"jobs_merged":   merged,
			"jobs_rejected": rejected,
			"rejections":    datatypes.JSONMap(rejections),
			"completed_at":  at,
			"updated_at":    at,
		}).Error
}

func (r *repo) Fail(ctx context.Context, runID string, message string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&scraperundomain.ScrapeRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"status":        scraperundomain.RunStatusFailed,
			"error_message": message,
			"completed_at":  at,
			"updated_at":    at,
		}).Error
}
