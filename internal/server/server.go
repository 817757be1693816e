// Package server exposes the tracking engine over HTTP: batch submission,
// the tracked-job read API, and scrape run status.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/entity"
	"github.com/jobsift/jobsift/internal/matcher"
	obslogger "github.com/jobsift/jobsift/internal/observability/logger"
	obsmetrics "github.com/jobsift/jobsift/internal/observability/metrics"
	obstracing "github.com/jobsift/jobsift/internal/observability/tracing"
	"github.com/jobsift/jobsift/internal/runlock"
	"github.com/jobsift/jobsift/internal/scraperun"
	scraperundomain "github.com/jobsift/jobsift/internal/scraperun/domain"
	"github.com/jobsift/jobsift/internal/tracker"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	entity.Module,
	matcher.Module,
	scraperun.Module,
	runlock.Module,
	tracker.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(obsmetrics.HTTP()))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	trackerSvc trackerdomain.Service
	runRepo    scraperundomain.Repository
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	TrackerSvc trackerdomain.Service
	RunRepo    scraperundomain.Repository
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		trackerSvc: p.TrackerSvc,
		runRepo:    p.RunRepo,
	}

	s.registerAPIRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/batches", s.SubmitBatch)
	v1.GET("/jobs", s.ListTrackedJobs)
	v1.GET("/jobs/:fingerprint", s.GetTrackedJob)
	v1.GET("/runs/:run_id", s.GetScrapeRun)
}
