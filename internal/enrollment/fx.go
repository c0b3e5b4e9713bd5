package enrollment

import (
	"github.com/smallbiznis/shikkha/internal/enrollment/repository"
	"github.com/smallbiznis/shikkha/internal/enrollment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("enrollment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
