package migration

import (
	"github.com/smallbiznis/shikkha/internal/config"
	dbpkg "github.com/smallbiznis/shikkha/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			log.Info("schema migrations disabled")
			return nil
		}
		if dbpkg.Kind(cfg.DBType) != "postgres" {
			log.Info("applying schema via auto migrate", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
