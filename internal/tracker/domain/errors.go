package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("tracked_job_not_found")
	ErrRunInProgress     = errors.New("scrape_run_in_progress")
	ErrInvalidBatch      = errors.New("invalid_batch")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrInvalidPagination = errors.New("invalid_pagination")
)

// ResolutionConflictError reports a create race that survived every
// bounded retry.
type ResolutionConflictError struct {
	Resource string
	Key      string
}

func (e *ResolutionConflictError) Error() string {
	return fmt.Sprintf("resolution conflict on %s %q", e.Resource, e.Key)
}

// StorageUnavailableError marks a batch-level persistence failure. The batch
// is reported failed and is safe to re-submit.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return "storage unavailable: " + e.Err.Error()
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}
