package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	entitydomain "github.com/jobsift/jobsift/internal/entity/domain"
	"github.com/jobsift/jobsift/internal/normalizer"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	"github.com/jobsift/jobsift/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

// List returns a stable page of tracked jobs ordered by
// (last_seen_at DESC, job_fingerprint ASC). The cursor encodes the sort key
// of the last row, so traversal never skips or duplicates rows when writers
// insert concurrently.
func (s *service) List(ctx context.Context, req trackerdomain.ListTrackedJobsRequest) (trackerdomain.ListTrackedJobsResponse, error) {
	size := req.PageSize
	if size == 0 {
		size = defaultPageSize
	}
	if size < 1 || size > maxPageSize {
		return trackerdomain.ListTrackedJobsResponse{}, trackerdomain.ErrInvalidPagination
	}

	query := s.db.WithContext(ctx).Model(&trackerdomain.TrackedJob{})

	if req.CompanyID != nil {
		query = query.Where("company_id = ?", *req.CompanyID)
	} else if req.Company != "" {
		query = query.Where("company_id IN (?)",
			s.db.Model(&entitydomain.CanonicalCompany{}).
				Select("id").
				Where("normalized_name = ?", normalizer.CompanySlug(req.Company)),
		)
	}
	if req.LocationID != nil {
		query = query.Where("location_id = ?", *req.LocationID)
	}
	if req.IsEvergreen != nil {
		query = query.Where("is_evergreen = ?", *req.IsEvergreen)
	}
	if req.MinRepostCount != nil {
		query = query.Where("repost_count >= ?", *req.MinRepostCount)
	}
	if req.SeenAfter != nil {
		query = query.Where("last_seen_at >= ?", *req.SeenAfter)
	}
	if req.SeenBefore != nil {
		query = query.Where("last_seen_at <= ?", *req.SeenBefore)
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return trackerdomain.ListTrackedJobsResponse{}, trackerdomain.ErrInvalidPageToken
		}
		lastSeen, err := time.Parse(time.RFC3339Nano, cursor.LastSeenAt)
		if err != nil {
			return trackerdomain.ListTrackedJobsResponse{}, trackerdomain.ErrInvalidPageToken
		}
		query = query.Where(
			"(last_seen_at < ?) OR (last_seen_at = ? AND job_fingerprint > ?)",
			lastSeen, lastSeen, cursor.Fingerprint,
		)
	}

	var jobs []*trackerdomain.TrackedJob
	err := query.
		Order("last_seen_at DESC, job_fingerprint ASC").
		Limit(size + 1).
		Preload("Sources").
		Find(&jobs).Error
	if err != nil {
		return trackerdomain.ListTrackedJobsResponse{}, fmt.Errorf("list tracked jobs: %w", err)
	}

	pageInfo, jobs, err := pagination.BuildCursorPageInfo(jobs, size, func(job *trackerdomain.TrackedJob) (string, error) {
		return pagination.EncodeCursor(pagination.Cursor{
			LastSeenAt:  job.LastSeenAt.UTC().Format(time.RFC3339Nano),
			Fingerprint: job.JobFingerprint,
		})
	})
	if err != nil {
		return trackerdomain.ListTrackedJobsResponse{}, err
	}

	return trackerdomain.ListTrackedJobsResponse{
		PageInfo:    *pageInfo,
		TrackedJobs: jobs,
	}, nil
}

// GetByFingerprint fetches one tracked job with its full source history.
func (s *service) GetByFingerprint(ctx context.Context, fp string) (*trackerdomain.TrackedJob, error) {
	var job trackerdomain.TrackedJob
	err := s.db.WithContext(ctx).
		Where("job_fingerprint = ?", fp).
		Preload("Sources").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, trackerdomain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
