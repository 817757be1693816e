// Package domain contains the scrape run bookkeeping model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun records one execution of a scraping adapter. The caller-supplied
// run id is unique, which is what makes batch re-submission idempotent: a
// completed run short-circuits to its stored summary instead of re-ingesting.
type ScrapeRun struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"-"`
	RunID          string            `gorm:"type:text;not null;uniqueIndex" json:"run_id"`
	SourcePlatform string            `gorm:"type:text;not null" json:"source_platform"`
	Status         RunStatus         `gorm:"type:text;not null" json:"status"`
	JobsFound      int               `gorm:"not null;default:0" json:"jobs_found"`
	JobsCreated    int               `gorm:"not null;default:0" json:"jobs_created"`
	JobsMerged     int               `gorm:"not null;default:0" json:"jobs_merged"`
	JobsRejected   int               `gorm:"not null;default:0" json:"jobs_rejected"`
	Rejections     datatypes.JSONMap `gorm:"type:jsonb" json:"rejections,omitempty"`
	ErrorMessage   string            `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt      time.Time         `gorm:"not null" json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"-"`
	UpdatedAt      time.Time         `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (ScrapeRun) TableName() string { return "scrape_runs" }

type Repository interface {
	GetByRunID(ctx context.Context, runID string) (*ScrapeRun, error)
	Start(ctx context.Context, run *ScrapeRun) (*ScrapeRun, error)
	Complete(ctx context.Context, runID string, created, merged, rejected int, rejections map[string]any, at time.Time) error
	Fail(ctx context.Context, runID string, message string, at time.Time) error
}
