package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/listingcraft/listingcraft/internal/clock"
	"github.com/listingcraft/listingcraft/internal/migration"
	"github.com/listingcraft/listingcraft/internal/observability"
	"github.com/listingcraft/listingcraft/internal/scheduler"
	"github.com/listingcraft/listingcraft/internal/server"
	"github.com/listingcraft/listingcraft/pkg/db"
	"go.uber.org/fx"
)

func main() {
	fx.New(appOptions()...).Run()
}

func appOptions() []fx.Option {
	return []fx.Option{
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		migration.Module,
		server.Module,
		scheduler.Module,
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
