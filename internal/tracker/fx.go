package tracker

import (
	"github.com/jobsift/jobsift/internal/tracker/repository"
	"github.com/jobsift/jobsift/internal/tracker/service"
	"go.uber.org/fx"
)

// Module wires the tracking merge engine.
var Module = fx.Module("tracker",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
