// Package domain contains the tracked-job aggregate and the tracking
// service contracts.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jobsift/jobsift/internal/normalizer"
	"github.com/jobsift/jobsift/pkg/db/pagination"
)

// TrackedJob is one real-world job posting across time and sources.
// job_fingerprint is an immutable identity: it is assigned on creation and
// never recomputed, even if canonicalization rules change later.
type TrackedJob struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	JobFingerprint         string       `gorm:"type:char(64);not null;uniqueIndex" json:"job_fingerprint"`
	DescriptionFingerprint string       `gorm:"type:char(64);index" json:"description_fingerprint,omitempty"`

	NormalizedTitle string `gorm:"type:text;not null" json:"normalized_title"`
	DisplayTitle    string `gorm:"type:text;not null" json:"title"`

	CompanyID  snowflake.ID `gorm:"not null;index:idx_tracked_company_location" json:"company_id"`
	LocationID snowflake.ID `gorm:"not null;index:idx_tracked_company_location" json:"location_id"`

	CompStated   bool   `gorm:"not null" json:"comp_stated"`
	CompCurrency string `gorm:"type:text" json:"comp_currency,omitempty"`
	CompMin      int64  `json:"comp_min,omitempty"`
	CompMax      int64  `json:"comp_max,omitempty"`
	CompInterval string `gorm:"type:text" json:"comp_interval,omitempty"`

	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null;index:idx_tracked_last_seen" json:"last_seen_at"`

	RepostCount    int  `gorm:"not null;default:0" json:"repost_count"`
	EvergreenScore int  `gorm:"not null;default:0" json:"evergreen_score"`
	IsEvergreen    bool `gorm:"not null;default:false" json:"is_evergreen"`

	Sources []JobSource `gorm:"foreignKey:TrackedJobID" json:"sources,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (TrackedJob) TableName() string { return "tracked_jobs" }

// JobSource is one platform's sighting history of a tracked job. Platform
// uniqueness per job is enforced by the index; insertion order is irrelevant.
type JobSource struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"-"`
	TrackedJobID snowflake.ID `gorm:"not null;uniqueIndex:uq_job_source_platform" json:"-"`
	Platform     string       `gorm:"type:text;not null;uniqueIndex:uq_job_source_platform" json:"platform"`
	ExternalID   string       `gorm:"type:text" json:"external_id,omitempty"`
	URL          string       `gorm:"type:text" json:"url,omitempty"`
	FirstSeenAt  time.Time    `gorm:"not null" json:"first_seen_at"`
	LastSeenAt   time.Time    `gorm:"not null" json:"last_seen_at"`
	CreatedAt    time.Time    `gorm:"not null" json:"-"`
	UpdatedAt    time.Time    `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (JobSource) TableName() string { return "job_sources" }

// Outcome classifies what ingesting one record did.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeMerged   Outcome = "merged"
	OutcomeRejected Outcome = "rejected"
)

// Rejection reasons surfaced in batch summaries.
const (
	ReasonTimeout  = "timeout"
	ReasonConflict = "conflict"
)

// IngestResult is the outcome of one record.
type IngestResult struct {
	Outcome Outcome     `json:"outcome"`
	Job     *TrackedJob `json:"job,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// ScrapeRunContext carries the batch-level metadata each record is ingested
// under.
type ScrapeRunContext struct {
	RunID          string
	SourcePlatform string
}

// ProcessBatchRequest is one completed scrape batch.
type ProcessBatchRequest struct {
	ScrapeRunID    string                    `json:"scrape_run_id"`
	SourcePlatform string                    `json:"source_platform"`
	Records        []normalizer.RawJobRecord `json:"records"`
}

// RejectedRecord enumerates why a record was dropped; no silent data loss.
type RejectedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchSummary is reported to the caller for every batch, even on partial
// failure.
type BatchSummary struct {
	ScrapeRunID string           `json:"scrape_run_id"`
	Created     int              `json:"created"`
	Merged      int              `json:"merged"`
	Rejected    int              `json:"rejected"`
	Rejections  []RejectedRecord `json:"rejections,omitempty"`
}

// ListTrackedJobsRequest is the read-path filter set.
type ListTrackedJobsRequest struct {
	Company        string
	CompanyID      *snowflake.ID
	LocationID     *snowflake.ID
	IsEvergreen    *bool
	MinRepostCount *int
	SeenAfter      *time.Time
	SeenBefore     *time.Time

	pagination.Pagination
}

// ListTrackedJobsResponse is a stable page ordered by
// (last_seen_at DESC, job_fingerprint).
type ListTrackedJobsResponse struct {
	pagination.PageInfo
	TrackedJobs []*TrackedJob `json:"tracked_jobs"`
}

// Service is the tracking engine surface. Only this service and the entity
// resolver write tracking state.
type Service interface {
	Ingest(ctx context.Context, rec normalizer.RawJobRecord, runCtx ScrapeRunContext) (IngestResult, error)
	ProcessBatch(ctx context.Context, req ProcessBatchRequest) (BatchSummary, error)
	List(ctx context.Context, req ListTrackedJobsRequest) (ListTrackedJobsResponse, error)
	GetByFingerprint(ctx context.Context, fp string) (*TrackedJob, error)
}
