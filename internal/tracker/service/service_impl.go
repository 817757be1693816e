// Package service implements the tracking merge engine: the only writer of
// tracked-job state. Each record is resolved, fingerprinted, and either
// creates a new tracked job or merges into an existing one under the
// per-fingerprint critical section.
package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jobsift/jobsift/internal/clock"
	"github.com/jobsift/jobsift/internal/config"
	entitydomain "github.com/jobsift/jobsift/internal/entity/domain"
	"github.com/jobsift/jobsift/internal/fingerprint"
	"github.com/jobsift/jobsift/internal/matcher"
	"github.com/jobsift/jobsift/internal/normalizer"
	obsmetrics "github.com/jobsift/jobsift/internal/observability/metrics"
	"github.com/jobsift/jobsift/internal/runlock"
	scraperundomain "github.com/jobsift/jobsift/internal/scraperun/domain"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	"github.com/jobsift/jobsift/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Tracking *config.TrackingConfigHolder
	Resolver entitydomain.Resolver
	Matcher  matcher.Service
	Repo     trackerdomain.Repository
	Runs     scraperundomain.Repository
	Locker   *runlock.Locker `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	tracking *config.TrackingConfigHolder
	resolver entitydomain.Resolver
	matcher  matcher.Service
	repo     trackerdomain.Repository
	runs     scraperundomain.Repository
	locker   *runlock.Locker
}

func New(p ServiceParam) trackerdomain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("tracker"),
		genID:    p.GenID,
		clock:    p.Clock,
		tracking: p.Tracking,
		resolver: p.Resolver,
		matcher:  p.Matcher,
		repo:     p.Repo,
		runs:     p.Runs,
		locker:   p.Locker,
	}
}

// Ingest processes one raw record end to end. Malformed records are rejected
// with a reason, not an error: a bad record must never poison its batch.
// Storage failures surface as StorageUnavailableError so the batch layer can
// fail the run.
func (s *service) Ingest(ctx context.Context, rec normalizer.RawJobRecord, runCtx trackerdomain.ScrapeRunContext) (trackerdomain.IngestResult, error) {
	view, err := normalizer.Normalize(rec)
	if err != nil {
		var nerr *normalizer.NormalizationError
		if errors.As(err, &nerr) {
			obsmetrics.Tracker().IncIngestOutcome(string(trackerdomain.OutcomeRejected), "missing_"+nerr.Field)
			return trackerdomain.IngestResult{
				Outcome: trackerdomain.OutcomeRejected,
				Reason:  err.Error(),
			}, nil
		}
		return trackerdomain.IngestResult{}, err
	}

	observedAt := s.clock.Now()
	if rec.ObservedAt != nil {
		observedAt = rec.ObservedAt.UTC()
	}

	company, err := s.resolver.ResolveCompany(ctx, view, observedAt)
	if err != nil {
		return trackerdomain.IngestResult{}, &trackerdomain.StorageUnavailableError{Err: err}
	}
	location, err := s.resolver.ResolveLocation(ctx, view)
	if err != nil {
		return trackerdomain.IngestResult{}, &trackerdomain.StorageUnavailableError{Err: err}
	}

	fp := fingerprint.Job(view, company.ID, location.ID)
	descFP := fingerprint.Description(view.DescriptionSnippet)

	platform := rec.SourcePlatform
	if platform == "" {
		platform = runCtx.SourcePlatform
	}

	retries := s.tracking.Current().ConflictRetries
	for attempt := 0; attempt < retries; attempt++ {
		result, err := s.ingestOnce(ctx, view, rec, fp, descFP, company.ID, location.ID, platform, observedAt)
		if err == nil {
			obsmetrics.Tracker().IncIngestOutcome(string(result.Outcome), "")
			return result, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return trackerdomain.IngestResult{}, &trackerdomain.StorageUnavailableError{Err: err}
		}
		// Lost a create race on the fingerprint unique index. The winner's
		// row now exists, so the next attempt will lock and merge into it.
		obsmetrics.Tracker().IncConflictRetry()
		s.log.Debug("fingerprint create race, retrying",
			zap.String("fingerprint", fp),
			zap.Int("attempt", attempt+1),
		)
		time.Sleep(conflictBackoff(attempt))
	}

	obsmetrics.Tracker().IncIngestOutcome(string(trackerdomain.OutcomeRejected), trackerdomain.ReasonConflict)
	return trackerdomain.IngestResult{
		Outcome: trackerdomain.OutcomeRejected,
		Reason:  trackerdomain.ReasonConflict,
	}, nil
}

// ingestOnce runs one create-or-merge attempt in its own transaction.
// A duplicate-key error from the tracked-job insert is the caller's retry
// signal; everything else is a hard failure.
func (s *service) ingestOnce(
	ctx context.Context,
	view normalizer.View,
	rec normalizer.RawJobRecord,
	fp, descFP string,
	companyID, locationID snowflake.ID,
	platform string,
	observedAt time.Time,
) (trackerdomain.IngestResult, error) {
	var result trackerdomain.IngestResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.LockByFingerprint(ctx, tx, fp)
		if err != nil {
			return err
		}

		if existing == nil {
			candidate, err := s.matcher.WithTx(tx).FindCandidate(ctx, fp, descFP, view, companyID, locationID)
			if err != nil {
				return err
			}
			if candidate != nil {
				// Re-read under the row lock; the matcher's snapshot may be
				// stale by the time we get here.
				existing, err = s.repo.LockByID(ctx, tx, candidate.ID)
				if err != nil {
					return err
				}
			}
		}

		if existing == nil {
			created, err := s.create(ctx, tx, view, rec, fp, descFP, companyID, locationID, platform, observedAt)
			if err != nil {
				return err
			}
			result = trackerdomain.IngestResult{Outcome: trackerdomain.OutcomeCreated, Job: created}
			return nil
		}

		merged, err := s.merge(ctx, tx, existing, rec, platform, observedAt)
		if err != nil {
			return err
		}
		result = trackerdomain.IngestResult{Outcome: trackerdomain.OutcomeMerged, Job: merged}
		return nil
	})
	if err != nil {
		return trackerdomain.IngestResult{}, err
	}
	return result, nil
}

func (s *service) create(
	ctx context.Context,
	tx *gorm.DB,
	view normalizer.View,
	rec normalizer.RawJobRecord,
	fp, descFP string,
	companyID, locationID snowflake.ID,
	platform string,
	observedAt time.Time,
) (*trackerdomain.TrackedJob, error) {
	job := &trackerdomain.TrackedJob{
		ID:                     s.genID.Generate(),
		JobFingerprint:         fp,
		DescriptionFingerprint: descFP,
		NormalizedTitle:        view.Title,
		DisplayTitle:           view.DisplayTitle,
		CompanyID:              companyID,
		LocationID:             locationID,
		CompStated:             view.Comp.Stated,
		CompCurrency:           view.Comp.Currency,
		CompMin:                view.Comp.Min,
		CompMax:                view.Comp.Max,
		CompInterval:           view.Comp.Interval,
		FirstSeenAt:            observedAt,
		LastSeenAt:             observedAt,
		RepostCount:            0,
		EvergreenScore:         1,
		IsEvergreen:            false,
	}
	if err := s.repo.Create(ctx, tx, job); err != nil {
		return nil, err
	}

	source := &trackerdomain.JobSource{
		ID:           s.genID.Generate(),
		TrackedJobID: job.ID,
		Platform:     platform,
		ExternalID:   rec.ExternalID,
		URL:          rec.URL,
		FirstSeenAt:  observedAt,
		LastSeenAt:   observedAt,
	}
	if err := s.repo.UpsertSource(ctx, tx, source); err != nil {
		return nil, err
	}
	job.Sources = []trackerdomain.JobSource{*source}
	return job, nil
}

// merge applies the gap rule to a locked tracked job. repost_count and
// evergreen_score are two readings of one gap computation and are always
// written together.
func (s *service) merge(
	ctx context.Context,
	tx *gorm.DB,
	job *trackerdomain.TrackedJob,
	rec normalizer.RawJobRecord,
	platform string,
	observedAt time.Time,
) (*trackerdomain.TrackedJob, error) {
	tc := s.tracking.Current()
	gap := observedAt.Sub(job.LastSeenAt)

	if gap > tc.FreshnessWindow {
		job.RepostCount++
		job.EvergreenScore = 1
		job.IsEvergreen = false
	} else {
		job.EvergreenScore++
		if job.EvergreenScore >= tc.EvergreenThreshold {
			job.IsEvergreen = true
		}
	}
	if observedAt.After(job.LastSeenAt) {
		job.LastSeenAt = observedAt
	}

	updates := map[string]any{
		"repost_count":    job.RepostCount,
		"evergreen_score": job.EvergreenScore,
		"is_evergreen":    job.IsEvergreen,
		"last_seen_at":    job.LastSeenAt,
	}
	if err := s.repo.Update(ctx, tx, job.ID, updates); err != nil {
		return nil, err
	}

	source := &trackerdomain.JobSource{
		ID:           s.genID.Generate(),
		TrackedJobID: job.ID,
		Platform:     platform,
		ExternalID:   rec.ExternalID,
		URL:          rec.URL,
		FirstSeenAt:  observedAt,
		LastSeenAt:   observedAt,
	}
	if err := s.repo.UpsertSource(ctx, tx, source); err != nil {
		return nil, err
	}
	return job, nil
}

// conflictBackoff spaces out create-race retries with jitter so two losing
// workers do not collide again in lockstep.
func conflictBackoff(attempt int) time.Duration {
	base := time.Duration(attempt+1) * 5 * time.Millisecond
	return base + time.Duration(rand.Int63n(int64(5*time.Millisecond)))
}
