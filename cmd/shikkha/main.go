package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shikkha/internal/auth"
	"github.com/smallbiznis/shikkha/internal/authorization"
	"github.com/smallbiznis/shikkha/internal/catalog"
	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/config"
	"github.com/smallbiznis/shikkha/internal/enrollment"
	"github.com/smallbiznis/shikkha/internal/migration"
	"github.com/smallbiznis/shikkha/internal/observability"
	"github.com/smallbiznis/shikkha/internal/payment"
	"github.com/smallbiznis/shikkha/internal/providers/pdf"
	"github.com/smallbiznis/shikkha/internal/ratelimit"
	"github.com/smallbiznis/shikkha/internal/scheduler"
	"github.com/smallbiznis/shikkha/internal/seed"
	"github.com/smallbiznis/shikkha/internal/server"
	"github.com/smallbiznis/shikkha/internal/user"
	"github.com/smallbiznis/shikkha/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Functional Domains
		user.Module,
		catalog.Module,
		enrollment.Module,
		pdf.Module,
		payment.Module,
		auth.Module,
		authorization.Module,
		seed.Module,

		// Outer surfaces; the scheduler only starts when SCHEDULER_ENABLED is set.
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
