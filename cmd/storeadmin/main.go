package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/counter"
	"github.com/smallbiznis/storeadmin/internal/datastore"
	"github.com/smallbiznis/storeadmin/internal/migration"
	"github.com/smallbiznis/storeadmin/internal/observability"
	"github.com/smallbiznis/storeadmin/internal/ratelimit"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/internal/seed"
	"github.com/smallbiznis/storeadmin/internal/server"
	"github.com/smallbiznis/storeadmin/pkg/db"
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
		ratelimit.Module,
		datastore.Module,

		// Records
		resolver.Module,
		records.Module,
		counter.Module,

		// Services and HTTP
		seed.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
