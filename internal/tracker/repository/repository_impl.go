package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/jobsift/jobsift/internal/observability/metrics"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() trackerdomain.Repository {
	return &repo{}
}

// LockByFingerprint reads the tracked job holding its row lock for the rest
// of the transaction. This is the per-fingerprint critical section: two
// concurrent observations of the same fingerprint serialize here.
func (r *repo) LockByFingerprint(ctx context.Context, tx *gorm.DB, fp string) (*trackerdomain.TrackedJob, error) {
	var job trackerdomain.TrackedJob
	lockStart := time.Now()
	err := lockedQuery(ctx, tx).
		Where("job_fingerprint = ?", fp).
		First(&job).Error
	obsmetrics.Tracker().ObserveFingerprintLockWait(time.Since(lockStart))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// LockByID re-reads a fuzzy-matched candidate under its row lock so the gap
// computation and metric updates run against a stable row.
func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*trackerdomain.TrackedJob, error) {
	var job trackerdomain.TrackedJob
	lockStart := time.Now()
	err := lockedQuery(ctx, tx).
		Where("id = ?", id).
		First(&job).Error
	obsmetrics.Tracker().ObserveFingerprintLockWait(time.Since(lockStart))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *repo) Create(ctx context.Context, tx *gorm.DB, job *trackerdomain.TrackedJob) error {
	return tx.WithContext(ctx).Create(job).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, id snowflake.ID, updates map[string]any) error {
	return tx.WithContext(ctx).Model(&trackerdomain.TrackedJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpsertSource adds the platform's source entry or refreshes the existing
// one. Runs inside the fingerprint critical section, so no extra locking.
func (r *repo) UpsertSource(ctx context.Context, tx *gorm.DB, source *trackerdomain.JobSource) error {
	var existing trackerdomain.JobSource
	err := tx.WithContext(ctx).
		Where("tracked_job_id = ? AND platform = ?", source.TrackedJobID, source.Platform).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.WithContext(ctx).Create(source).Error
		}
		return err
	}

	updates := map[string]any{
		"updated_at": source.LastSeenAt,
	}
	if source.LastSeenAt.After(existing.LastSeenAt) {
		updates["last_seen_at"] = source.LastSeenAt
	}
	if source.ExternalID != "" {
		updates["external_id"] = source.ExternalID
	}
	if source.URL != "" {
		updates["url"] = source.URL
	}
	return tx.WithContext(ctx).Model(&trackerdomain.JobSource{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
}

// lockedQuery applies SELECT ... FOR UPDATE where the dialect supports it.
// SQLite serializes writers anyway, so the clause is skipped there.
func lockedQuery(ctx context.Context, tx *gorm.DB) *gorm.DB {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}
