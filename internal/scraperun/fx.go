package scraperun

import (
	"github.com/jobsift/jobsift/internal/scraperun/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("scraperun",
	fx.Provide(repository.Provide),
)
