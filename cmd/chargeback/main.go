package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chargeback/internal/chargeback"
	"github.com/smallbiznis/chargeback/internal/clock"
	"github.com/smallbiznis/chargeback/internal/config"
	"github.com/smallbiznis/chargeback/internal/consumer"
	"github.com/smallbiznis/chargeback/internal/keylock"
	"github.com/smallbiznis/chargeback/internal/migration"
	"github.com/smallbiznis/chargeback/internal/observability"
	"github.com/smallbiznis/chargeback/internal/remote"
	"github.com/smallbiznis/chargeback/internal/remote/httpclient"
	"github.com/smallbiznis/chargeback/internal/server"
	"github.com/smallbiznis/chargeback/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		keylock.Module,

		// Payment authority
		httpclient.Module,
		remote.Module,

		// Chargeback lifecycle
		chargeback.Module,

		// Inbound surfaces
		server.Module,
		consumer.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
