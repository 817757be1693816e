package migration

import (
	"github.com/jobsift/jobsift/internal/config"
	entitydomain "github.com/jobsift/jobsift/internal/entity/domain"
	scraperundomain "github.com/jobsift/jobsift/internal/scraperun/domain"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module migrates the schema at startup. Postgres uses the versioned SQL
// migrations; other dialects (sqlite for local runs) fall back to
// AutoMigrate, which derives an equivalent schema from the models.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		return AutoMigrate(conn)
	}),
)

// AutoMigrate creates the tracking schema from the GORM models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&entitydomain.CanonicalCompany{},
		&entitydomain.CanonicalLocation{},
		&trackerdomain.TrackedJob{},
		&trackerdomain.JobSource{},
		&scraperundomain.ScrapeRun{},
	)
}
