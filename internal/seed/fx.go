package seed

import (
	"context"

	catalogdomain "github.com/smallbiznis/shikkha/internal/catalog/domain"
	"github.com/smallbiznis/shikkha/internal/config"
	userdomain "github.com/smallbiznis/shikkha/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(func(cfg config.Config, users userdomain.Service, catalog catalogdomain.Service, log *zap.Logger) error {
		opts := Options{
			AdminID:    cfg.BootstrapAdminID,
			AdminEmail: cfg.BootstrapAdminEmail,
			DemoCourse: cfg.SeedDemoCourse && !cfg.IsProduction(),
		}
		return Run(context.Background(), users, catalog, opts, log.Named("seed"))
	}),
)
