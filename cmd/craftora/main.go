package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/config"
	"github.com/craftora/craftora/internal/logger"
	"github.com/craftora/craftora/internal/migration"
	"github.com/craftora/craftora/internal/scheduler"
	"github.com/craftora/craftora/internal/server"
	"github.com/craftora/craftora/pkg/db"
	"github.com/craftora/craftora/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		server.Module,
		scheduler.Module,
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
