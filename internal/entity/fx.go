package entity

import (
	"github.com/jobsift/jobsift/internal/entity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entity.resolver",
	fx.Provide(service.New),
)
