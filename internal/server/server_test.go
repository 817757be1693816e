package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/jobsift/jobsift/internal/clock"
	"github.com/jobsift/jobsift/internal/config"
	entitydomain "github.com/jobsift/jobsift/internal/entity/domain"
	entityservice "github.com/jobsift/jobsift/internal/entity/service"
	"github.com/jobsift/jobsift/internal/matcher"
	scraperundomain "github.com/jobsift/jobsift/internal/scraperun/domain"
	scraperunrepo "github.com/jobsift/jobsift/internal/scraperun/repository"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	trackerrepo "github.com/jobsift/jobsift/internal/tracker/repository"
	trackerservice "github.com/jobsift/jobsift/internal/tracker/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupServer(t *testing.T) (*Server, *clock.FakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	runRepo := scraperunrepo.Provide(conn)

	trackerSvc := trackerservice.New(trackerservice.ServiceParam{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    fc,
		Tracking: holder,
		Resolver: entityservice.New(entityservice.ResolverParam{DB: conn, Log: log, GenID: node}),
		Matcher:  matcher.New(matcher.MatcherParam{DB: conn, Log: log, Tracking: holder}),
		Repo:     trackerrepo.Provide(),
		Runs:     runRepo,
	})

	srv := NewServer(ServerParams{
		Gin:        NewEngine(),
		Cfg:        config.Config{},
		DB:         conn,
		TrackerSvc: trackerSvc,
		RunRepo:    runRepo,
	})
	return srv, fc
}

func submitBatch(t *testing.T, srv *Server, runID string, records []map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"scrape_run_id":   runID,
		"source_platform": "indeed",
		"records":         records,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestSubmitBatch(t *testing.T) {
	srv, _ := setupServer(t)

	w := submitBatch(t, srv, "run-1", []map[string]any{
		{"title": "Python Developer", "company": "Acme", "location": "Remote"},
		{"company": "Acme"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var summary trackerdomain.BatchSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "run-1", summary.ScrapeRunID)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Rejected)
}

func TestSubmitBatch_Validation(t *testing.T) {
	srv, _ := setupServer(t)

	t.Run("missing source_platform", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(`{"scrape_run_id":"x","records":[]}`))
		req.Header.Set("Content-Type", "application/json")
		srv.Engine().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		srv.Engine().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListAndGetTrackedJobs(t *testing.T) {
	srv, fc := setupServer(t)

	require.Equal(t, http.StatusCreated, submitBatch(t, srv, "run-1", []map[string]any{
		{"title": "Python Developer", "company": "Acme", "location": "Remote"},
		{"title": "Go Developer", "company": "Globex", "location": "Remote"},
	}).Code)

	fc.Advance(time.Hour)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list trackerdomain.ListTrackedJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.TrackedJobs, 2)

	t.Run("filter by company", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs?company=Acme", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var filtered trackerdomain.ListTrackedJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filtered))
		require.Len(t, filtered.TrackedJobs, 1)
		assert.Equal(t, "python developer", filtered.TrackedJobs[0].NormalizedTitle)
	})

	t.Run("get by fingerprint", func(t *testing.T) {
		fp := list.TrackedJobs[0].JobFingerprint

		w := httptest.NewRecorder()
		srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+fp, nil))
		assert.Equal(t, http.StatusOK, w.Code)

		var job trackerdomain.TrackedJob
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		assert.Equal(t, fp, job.JobFingerprint)
		assert.NotEmpty(t, job.Sources)
	})

	t.Run("unknown fingerprint is 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+strings.Repeat("0", 64), nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed fingerprint is 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs/short", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid page token is 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs?page_token=garbage", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListTrackedJobs_Pagination(t *testing.T) {
	srv, fc := setupServer(t)

	for i, title := range []string{"Backend Engineer", "Data Scientist", "Product Manager"} {
		require.Equal(t, http.StatusCreated, submitBatch(t, srv, "run-"+title, []map[string]any{
			{"title": title, "company": "Acme", "location": "Remote"},
		}).Code)
		fc.Advance(time.Duration(i+1) * time.Minute)
	}

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs?page_size=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page1 trackerdomain.ListTrackedJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page1))
	require.Len(t, page1.TrackedJobs, 2)
	require.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextPageToken)

	// Most recently seen first.
	assert.Equal(t, "product manager", page1.TrackedJobs[0].NormalizedTitle)

	w = httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/jobs?page_size=2&page_token="+page1.NextPageToken, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page2 trackerdomain.ListTrackedJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page2))
	require.Len(t, page2.TrackedJobs, 1)
	assert.False(t, page2.HasMore)
	assert.Equal(t, "backend engineer", page2.TrackedJobs[0].NormalizedTitle)
}

func TestGetScrapeRun(t *testing.T) {
	srv, _ := setupServer(t)

	require.Equal(t, http.StatusCreated, submitBatch(t, srv, "run-1", []map[string]any{
		{"title": "Python Developer", "company": "Acme", "location": "Remote"},
	}).Code)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var run scraperundomain.ScrapeRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, scraperundomain.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.JobsCreated)

	w = httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
