package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/jobsift/jobsift/internal/clock"
	"github.com/jobsift/jobsift/internal/config"
	entitydomain "github.com/jobsift/jobsift/internal/entity/domain"
	entityservice "github.com/jobsift/jobsift/internal/entity/service"
	"github.com/jobsift/jobsift/internal/matcher"
	"github.com/jobsift/jobsift/internal/normalizer"
	scraperundomain "github.com/jobsift/jobsift/internal/scraperun/domain"
	scraperunrepo "github.com/jobsift/jobsift/internal/scraperun/repository"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	trackerrepo "github.com/jobsift/jobsift/internal/tracker/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc      trackerdomain.Service
	db       *gorm.DB
	clock    *clock.FakeClock
	tracking *config.TrackingConfigHolder
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&entitydomain.CanonicalCompany{},
		&entitydomain.CanonicalLocation{},
		&trackerdomain.TrackedJob{},
		&trackerdomain.JobSource{},
		&scraperundomain.ScrapeRun{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	holder := &config.TrackingConfigHolder{}
	holder.Store(config.TrackingConfig{
		FreshnessWindow:    24 * time.Hour,
		EvergreenThreshold: 7,
		TitleSimilarity:    0.85,
		BatchTimeout:       time.Minute,
		ConflictRetries:    3,
	})

	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))

	svc := New(ServiceParam{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    fc,
		Tracking: holder,
		Resolver: entityservice.New(entityservice.ResolverParam{DB: conn, Log: log, GenID: node}),
		Matcher:  matcher.New(matcher.MatcherParam{DB: conn, Log: log, Tracking: holder}),
		Repo:     trackerrepo.Provide(),
		Runs:     scraperunrepo.Provide(conn),
	})

	return &fixture{svc: svc, db: conn, clock: fc, tracking: holder}
}

func record(title, company, location string) normalizer.RawJobRecord {
	return normalizer.RawJobRecord{
		Title:    title,
		Company:  company,
		Location: location,
	}
}

func (f *fixture) ingest(t *testing.T, rec normalizer.RawJobRecord, platform string) trackerdomain.IngestResult {
	t.Helper()
	result, err := f.svc.Ingest(context.Background(), rec, trackerdomain.ScrapeRunContext{SourcePlatform: platform})
	require.NoError(t, err)
	return result
}

func (f *fixture) jobCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&trackerdomain.TrackedJob{}).Count(&count).Error)
	return count
}

func TestIngest_CreateThenMerge(t *testing.T) {
	f := setupFixture(t)
	rec := record("Python Developer", "Acme", "Remote")

	created := f.ingest(t, rec, "indeed")
	assert.Equal(t, trackerdomain.OutcomeCreated, created.Outcome)
	assert.Equal(t, 0, created.Job.RepostCount)
	assert.Equal(t, 1, created.Job.EvergreenScore)
	assert.False(t, created.Job.IsEvergreen)
	assert.True(t, created.Job.FirstSeenAt.Equal(created.Job.LastSeenAt))
	require.Len(t, created.Job.Sources, 1)

	f.clock.Advance(time.Hour)
	merged := f.ingest(t, rec, "indeed")
	assert.Equal(t, trackerdomain.OutcomeMerged, merged.Outcome)
	assert.Equal(t, created.Job.JobFingerprint, merged.Job.JobFingerprint)
	assert.Equal(t, 0, merged.Job.RepostCount)
	assert.Equal(t, 2, merged.Job.EvergreenScore)

	assert.EqualValues(t, 1, f.jobCount(t))
}

func TestIngest_GapSemantics(t *testing.T) {
	const window = 24 * time.Hour

	t.Run("one second inside the window is continuity", func(t *testing.T) {
		f := setupFixture(t)
		rec := record("Backend Engineer", "Acme", "Berlin, Germany")

		f.ingest(t, rec, "indeed")
		f.clock.Advance(window - time.Second)

		result := f.ingest(t, rec, "indeed")
		assert.Equal(t, trackerdomain.OutcomeMerged, result.Outcome)
		assert.Equal(t, 0, result.Job.RepostCount)
		assert.Equal(t, 2, result.Job.EvergreenScore)
	})

	t.Run("exactly the window apart is still continuity", func(t *testing.T) {
		f := setupFixture(t)
		rec := record("Backend Engineer", "Acme", "Berlin, Germany")

		first := f.ingest(t, rec, "indeed")
		f.clock.Set(first.Job.LastSeenAt.Add(window))

		result := f.ingest(t, rec, "indeed")
		assert.Equal(t, trackerdomain.OutcomeMerged, result.Outcome)
		assert.Equal(t, 0, result.Job.RepostCount)
		assert.Equal(t, 2, result.Job.EvergreenScore)
	})

	t.Run("one second past the window is a repost", func(t *testing.T) {
		f := setupFixture(t)
		rec := record("Backend Engineer", "Acme", "Berlin, Germany")

		f.ingest(t, rec, "indeed")
		f.clock.Advance(window + time.Second)

		result := f.ingest(t, rec, "indeed")
		assert.Equal(t, trackerdomain.OutcomeMerged, result.Outcome)
		assert.Equal(t, 1, result.Job.RepostCount)
		assert.Equal(t, 1, result.Job.EvergreenScore)
		assert.False(t, result.Job.IsEvergreen)
	})
}

func TestIngest_EvergreenTransition(t *testing.T) {
	f := setupFixture(t)
	rec := record("Site Reliability Engineer", "Acme", "Remote")

	f.ingest(t, rec, "indeed")
	var last trackerdomain.IngestResult
	for i := 0; i < 6; i++ {
		f.clock.Advance(23 * time.Hour)
		last = f.ingest(t, rec, "indeed")
	}
	assert.Equal(t, 7, last.Job.EvergreenScore)
	assert.True(t, last.Job.IsEvergreen)

	// Breaking the chain resets the signal.
	f.clock.Advance(48 * time.Hour)
	broken := f.ingest(t, rec, "indeed")
	assert.Equal(t, 1, broken.Job.RepostCount)
	assert.Equal(t, 1, broken.Job.EvergreenScore)
	assert.False(t, broken.Job.IsEvergreen)
}

func TestIngest_FuzzyMatchWithinCompanyAndLocation(t *testing.T) {
	f := setupFixture(t)

	created := f.ingest(t, record("Senior Software Engineer", "Acme", "Remote"), "indeed")
	require.Equal(t, trackerdomain.OutcomeCreated, created.Outcome)

	f.clock.Advance(time.Hour)

	// Seniority-qualifier reordering is the same posting.
	variant := f.ingest(t, record("Software Engineer Sr.", "Acme", "Remote"), "linkedin")
	assert.Equal(t, trackerdomain.OutcomeMerged, variant.Outcome)
	assert.Equal(t, created.Job.JobFingerprint, variant.Job.JobFingerprint)

	// The identical title at another company is a different job.
	other := f.ingest(t, record("Senior Software Engineer", "Globex", "Remote"), "indeed")
	assert.Equal(t, trackerdomain.OutcomeCreated, other.Outcome)

	// Dropping the seniority level is a different job too.
	junior := f.ingest(t, record("Software Engineer", "Acme", "Remote"), "indeed")
	assert.Equal(t, trackerdomain.OutcomeCreated, junior.Outcome)

	assert.EqualValues(t, 3, f.jobCount(t))
}

func TestIngest_SourceAggregation(t *testing.T) {
	f := setupFixture(t)
	rec := record("Data Engineer", "Acme", "Remote")

	f.ingest(t, rec, "indeed")
	f.clock.Advance(2 * time.Hour)
	merged := f.ingest(t, rec, "linkedin")

	var sources []trackerdomain.JobSource
	require.NoError(t, f.db.Where("tracked_job_id = ?", merged.Job.ID).Order("platform").Find(&sources).Error)
	require.Len(t, sources, 2)
	assert.Equal(t, "indeed", sources[0].Platform)
	assert.Equal(t, "linkedin", sources[1].Platform)

	// A repeat sighting from a known platform refreshes, never duplicates.
	f.clock.Advance(time.Hour)
	f.ingest(t, rec, "indeed")
	var count int64
	require.NoError(t, f.db.Model(&trackerdomain.JobSource{}).Where("tracked_job_id = ?", merged.Job.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestIngest_MalformedRecordIsRejectedNotFatal(t *testing.T) {
	f := setupFixture(t)

	result, err := f.svc.Ingest(context.Background(), normalizer.RawJobRecord{Company: "Acme"}, trackerdomain.ScrapeRunContext{SourcePlatform: "indeed"})
	require.NoError(t, err)
	assert.Equal(t, trackerdomain.OutcomeRejected, result.Outcome)
	assert.Contains(t, result.Reason, "title")
	assert.EqualValues(t, 0, f.jobCount(t))
}

func TestIngest_ObservedAtFromRecord(t *testing.T) {
	f := setupFixture(t)
	observed := time.Date(2026, 2, 27, 9, 30, 0, 0, time.UTC)

	rec := record("QA Engineer", "Acme", "Remote")
	rec.ObservedAt = &observed

	result := f.ingest(t, rec, "indeed")
	assert.True(t, result.Job.FirstSeenAt.Equal(observed))
	assert.True(t, result.Job.LastSeenAt.Equal(observed))
}

func TestProcessBatch_Scenario(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	batch := func(runID string) trackerdomain.ProcessBatchRequest {
		return trackerdomain.ProcessBatchRequest{
			ScrapeRunID:    runID,
			SourcePlatform: "indeed",
			Records: []normalizer.RawJobRecord{
				record("Python Developer", "Acme", "Remote"),
			},
		}
	}

	first, err := f.svc.ProcessBatch(ctx, batch("run-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, first.Merged)

	f.clock.Advance(time.Hour)
	second, err := f.svc.ProcessBatch(ctx, batch("run-2"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Merged)

	var job trackerdomain.TrackedJob
	require.NoError(t, f.db.First(&job).Error)
	assert.Equal(t, 0, job.RepostCount)
	assert.Equal(t, 2, job.EvergreenScore)

	f.clock.Advance(48 * time.Hour)
	third, err := f.svc.ProcessBatch(ctx, batch("run-3"))
	require.NoError(t, err)
	assert.Equal(t, 1, third.Merged)

	require.NoError(t, f.db.First(&job).Error)
	assert.Equal(t, 1, job.RepostCount)
	assert.Equal(t, 1, job.EvergreenScore)
	assert.False(t, job.IsEvergreen)
	assert.EqualValues(t, 1, f.jobCount(t))
}

func TestProcessBatch_MalformedRecordsAreIsolated(t *testing.T) {
	f := setupFixture(t)

	summary, err := f.svc.ProcessBatch(context.Background(), trackerdomain.ProcessBatchRequest{
		ScrapeRunID:    "run-mixed",
		SourcePlatform: "indeed",
		Records: []normalizer.RawJobRecord{
			record("Python Developer", "Acme", "Remote"),
			{Company: "Acme"},
			record("Go Developer", "Acme", "Remote"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Rejected)
	require.Len(t, summary.Rejections, 1)
	assert.Equal(t, 1, summary.Rejections[0].Index)
	assert.Contains(t, summary.Rejections[0].Reason, "title")

	var run scraperundomain.ScrapeRun
	require.NoError(t, f.db.Where("run_id = ?", "run-mixed").First(&run).Error)
	assert.Equal(t, scraperundomain.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.JobsFound)
	assert.Equal(t, 2, run.JobsCreated)
	assert.Equal(t, 1, run.JobsRejected)
}

func TestProcessBatch_CompletedRunIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	req := trackerdomain.ProcessBatchRequest{
		ScrapeRunID:    "run-replay",
		SourcePlatform: "indeed",
		Records: []normalizer.RawJobRecord{
			record("Python Developer", "Acme", "Remote"),
		},
	}

	first, err := f.svc.ProcessBatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	f.clock.Advance(time.Hour)
	replay, err := f.svc.ProcessBatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Created, replay.Created)
	assert.Equal(t, first.Merged, replay.Merged)

	// The replay returned the stored summary; tracked state did not move.
	var job trackerdomain.TrackedJob
	require.NoError(t, f.db.First(&job).Error)
	assert.Equal(t, 1, job.EvergreenScore)
}

func TestProcessBatch_DeadlineRejectsEveryRemainingRecord(t *testing.T) {
	f := setupFixture(t)
	f.tracking.Store(config.TrackingConfig{
		FreshnessWindow:    24 * time.Hour,
		EvergreenThreshold: 7,
		TitleSimilarity:    0.85,
		BatchTimeout:       50 * time.Millisecond,
		ConflictRetries:    3,
	})

	// Stall every read well past the deadline so the first record is still
	// in flight when it expires. The in-flight record must be accounted for,
	// not just the ones that never started.
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("stall_reads", func(*gorm.DB) {
		time.Sleep(120 * time.Millisecond)
	}))

	summary, err := f.svc.ProcessBatch(context.Background(), trackerdomain.ProcessBatchRequest{
		ScrapeRunID:    "run-deadline",
		SourcePlatform: "indeed",
		Records: []normalizer.RawJobRecord{
			record("Python Developer", "Acme", "Remote"),
			record("Go Developer", "Acme", "Remote"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 0, summary.Merged)
	assert.Equal(t, 2, summary.Rejected)
	require.Len(t, summary.Rejections, 2)
	assert.Equal(t, 0, summary.Rejections[0].Index)
	assert.Equal(t, 1, summary.Rejections[1].Index)
	for _, r := range summary.Rejections {
		assert.Equal(t, trackerdomain.ReasonTimeout, r.Reason)
	}
	// Every record lands in exactly one bucket.
	assert.Equal(t, 2, summary.Created+summary.Merged+summary.Rejected)

	var run scraperundomain.ScrapeRun
	require.NoError(t, f.db.Where("run_id = ?", "run-deadline").First(&run).Error)
	assert.Equal(t, scraperundomain.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.JobsRejected)
}

func TestProcessBatch_RequiresSourcePlatform(t *testing.T) {
	f := setupFixture(t)

	_, err := f.svc.ProcessBatch(context.Background(), trackerdomain.ProcessBatchRequest{ScrapeRunID: "run-x"})
	assert.ErrorIs(t, err, trackerdomain.ErrInvalidBatch)
}

func TestIngest_OrderInvariance(t *testing.T) {
	records := []normalizer.RawJobRecord{
		record("Python Developer", "Acme", "Remote"),
		record("Python Developer", "Acme", "Remote"),
		record("Senior Data Engineer", "Acme", "Berlin, Germany"),
		record("Data Engineer Sr.", "Acme", "Berlin, Germany"),
		record("Python Developer", "Globex", "Remote"),
	}

	// A fuzzy pair's surviving fingerprint is first-writer-wins, so order
	// invariance is stated over the job set's shape: how many jobs exist and
	// their gap counters, keyed by company.
	finalState := func(order []int) map[string][][2]int {
		f := setupFixture(t)
		for _, idx := range order {
			f.ingest(t, records[idx], "indeed")
		}

		var jobs []trackerdomain.TrackedJob
		require.NoError(t, f.db.Order("company_id, evergreen_score").Find(&jobs).Error)

		state := make(map[string][][2]int)
		for _, job := range jobs {
			var company entitydomain.CanonicalCompany
			require.NoError(t, f.db.Where("id = ?", job.CompanyID).First(&company).Error)
			state[company.NormalizedName] = append(state[company.NormalizedName], [2]int{job.RepostCount, job.EvergreenScore})
		}
		return state
	}

	base := finalState([]int{0, 1, 2, 3, 4})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 3; i++ {
		order := rng.Perm(len(records))
		assert.Equal(t, base, finalState(order), "order %v", order)
	}
}
