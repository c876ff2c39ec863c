package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/analysis"
	"github.com/smallbiznis/storepulse/internal/cache"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/customer"
	"github.com/smallbiznis/storepulse/internal/dashboard"
	"github.com/smallbiznis/storepulse/internal/metricspush"
	"github.com/smallbiznis/storepulse/internal/migration"
	"github.com/smallbiznis/storepulse/internal/observability"
	"github.com/smallbiznis/storepulse/internal/scheduler"
	"github.com/smallbiznis/storepulse/internal/scoring"
	"github.com/smallbiznis/storepulse/internal/server"
	"github.com/smallbiznis/storepulse/internal/store"
	"github.com/smallbiznis/storepulse/internal/visit"
	"github.com/smallbiznis/storepulse/internal/workerpool"
	"github.com/smallbiznis/storepulse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		metricspush.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		workerpool.Module,

		// Functional Domains
		store.Module,
		customer.Module,
		visit.Module,
		dashboard.Module,
		scoring.Module,
		analysis.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
