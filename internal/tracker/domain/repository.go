package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the write-side store for tracked jobs. The locked reads are
// the per-fingerprint critical section of the merge engine; all mutation of
// tracking state flows through here and nowhere else.
type Repository interface {
	LockByFingerprint(ctx context.Context, tx *gorm.DB, fp string) (*TrackedJob, error)
	LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*TrackedJob, error)
	Create(ctx context.Context, tx *gorm.DB, job *TrackedJob) error
	Update(ctx context.Context, tx *gorm.DB, id snowflake.ID, updates map[string]any) error
	UpsertSource(ctx context.Context, tx *gorm.DB, source *JobSource) error
}
