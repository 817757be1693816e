package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/oklog/ulid/v2"

	obsmetrics "github.com/jobsift/jobsift/internal/observability/metrics"
	scraperundomain "github.com/jobsift/jobsift/internal/scraperun/domain"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	"github.com/jobsift/jobsift/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// ProcessBatch ingests one scrape batch record by record. The whole batch
// never fails because of individual bad records; it fails only when storage
// itself is unavailable, and even then the summary accounts for every record.
// Re-submitting a completed run id returns the stored summary without
// touching tracked state.
func (s *service) ProcessBatch(ctx context.Context, req trackerdomain.ProcessBatchRequest) (trackerdomain.BatchSummary, error) {
	if req.SourcePlatform == "" {
		return trackerdomain.BatchSummary{}, fmt.Errorf("%w: source_platform is required", trackerdomain.ErrInvalidBatch)
	}

	runID := req.ScrapeRunID
	if runID == "" {
		runID = ulid.Make().String()
	}

	ctx, cid := correlation.EnsureCorrelationID(ctx)
	log := s.log.With(
		zap.String("run_id", runID),
		zap.String("source_platform", req.SourcePlatform),
		zap.String("correlation_id", cid),
	)

	tc := s.tracking.Current()

	token, acquired, err := s.locker.TryLock(ctx, "scrape_run:"+runID, tc.BatchTimeout)
	if err != nil {
		// Advisory only: the run-row unique index still guards correctness.
		log.Warn("run lock unavailable, proceeding without it", zap.Error(err))
	} else if !acquired {
		return trackerdomain.BatchSummary{}, trackerdomain.ErrRunInProgress
	}
	defer func() {
		if token != "" {
			if err := s.locker.Release(context.WithoutCancel(ctx), "scrape_run:"+runID, token); err != nil {
				log.Warn("run lock release failed", zap.Error(err))
			}
		}
	}()

	startedAt := s.clock.Now()
	run, err := s.runs.Start(ctx, &scraperundomain.ScrapeRun{
		ID:             s.genID.Generate(),
		RunID:          runID,
		SourcePlatform: req.SourcePlatform,
		Status:         scraperundomain.RunStatusRunning,
		JobsFound:      len(req.Records),
		StartedAt:      startedAt,
	})
	if err != nil {
		return trackerdomain.BatchSummary{}, &trackerdomain.StorageUnavailableError{Err: err}
	}
	if run.Status == scraperundomain.RunStatusCompleted {
		log.Info("run already completed, returning stored summary")
		return summaryFromRun(run), nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, tc.BatchTimeout)
	defer cancel()

	runCtx := trackerdomain.ScrapeRunContext{RunID: runID, SourcePlatform: req.SourcePlatform}
	summary := trackerdomain.BatchSummary{ScrapeRunID: runID}

	var storageErr error
	for i, rec := range req.Records {
		if batchCtx.Err() != nil {
			// Deadline hit: the remaining records are rejected explicitly
			// rather than dropped.
			for j := i; j < len(req.Records); j++ {
				summary.Rejected++
				summary.Rejections = append(summary.Rejections, trackerdomain.RejectedRecord{
					Index:  j,
					Reason: trackerdomain.ReasonTimeout,
				})
				obsmetrics.Tracker().IncIngestOutcome(string(trackerdomain.OutcomeRejected), trackerdomain.ReasonTimeout)
			}
			break
		}

		result, err := s.Ingest(batchCtx, rec, runCtx)
		if err != nil {
			var unavailable *trackerdomain.StorageUnavailableError
			if errors.As(err, &unavailable) && batchCtx.Err() == nil {
				storageErr = err
				for j := i; j < len(req.Records); j++ {
					summary.Rejected++
					summary.Rejections = append(summary.Rejections, trackerdomain.RejectedRecord{
						Index:  j,
						Reason: "storage_unavailable",
					})
				}
				break
			}
			// Context expiry surfaces as a storage error from the driver.
			// The in-flight record is rejected here; the next loop
			// iteration sweeps the remainder.
			if batchCtx.Err() != nil {
				summary.Rejected++
				summary.Rejections = append(summary.Rejections, trackerdomain.RejectedRecord{
					Index:  i,
					Reason: trackerdomain.ReasonTimeout,
				})
				obsmetrics.Tracker().IncIngestOutcome(string(trackerdomain.OutcomeRejected), trackerdomain.ReasonTimeout)
				continue
			}
			storageErr = err
			summary.Rejected++
			summary.Rejections = append(summary.Rejections, trackerdomain.RejectedRecord{Index: i, Reason: err.Error()})
			break
		}

		switch result.Outcome {
		case trackerdomain.OutcomeCreated:
			summary.Created++
		case trackerdomain.OutcomeMerged:
			summary.Merged++
		case trackerdomain.OutcomeRejected:
			summary.Rejected++
			summary.Rejections = append(summary.Rejections, trackerdomain.RejectedRecord{
				Index:  i,
				Reason: result.Reason,
			})
		}
	}

	finishedAt := s.clock.Now()
	obsmetrics.Tracker().ObserveBatch(len(req.Records), finishedAt.Sub(startedAt))

	if storageErr != nil {
		if failErr := s.runs.Fail(context.WithoutCancel(ctx), runID, storageErr.Error(), finishedAt); failErr != nil {
			log.Error("failed to mark run failed", zap.Error(failErr))
		}
		log.Error("batch failed",
			zap.Int("created", summary.Created),
			zap.Int("merged", summary.Merged),
			zap.Int("rejected", summary.Rejected),
			zap.Error(storageErr),
		)
		return summary, storageErr
	}

	if err := s.runs.Complete(context.WithoutCancel(ctx), runID, summary.Created, summary.Merged, summary.Rejected, rejectionMap(summary.Rejections), finishedAt); err != nil {
		log.Error("failed to mark run completed", zap.Error(err))
		return summary, &trackerdomain.StorageUnavailableError{Err: err}
	}

	log.Info("batch processed",
		zap.Int("records", len(req.Records)),
		zap.Int("created", summary.Created),
		zap.Int("merged", summary.Merged),
		zap.Int("rejected", summary.Rejected),
		zap.Duration("took", finishedAt.Sub(startedAt)),
	)
	return summary, nil
}

func summaryFromRun(run *scraperundomain.ScrapeRun) trackerdomain.BatchSummary {
	summary := trackerdomain.BatchSummary{
		ScrapeRunID: run.RunID,
		Created:     run.JobsCreated,
		Merged:      run.JobsMerged,
		Rejected:    run.JobsRejected,
	}
	for key, val := range run.Rejections {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		reason, _ := val.(string)
		summary.Rejections = append(summary.Rejections, trackerdomain.RejectedRecord{Index: idx, Reason: reason})
	}
	sort.Slice(summary.Rejections, func(i, j int) bool {
		return summary.Rejections[i].Index < summary.Rejections[j].Index
	})
	return summary
}

func rejectionMap(rejections []trackerdomain.RejectedRecord) map[string]any {
	if len(rejections) == 0 {
		return nil
	}
	m := make(map[string]any, len(rejections))
	for _, r := range rejections {
		m[strconv.Itoa(r.Index)] = r.Reason
	}
	return m
}
