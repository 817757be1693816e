package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/jobsift/jobsift/internal/clock"
	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/migration"
	"github.com/jobsift/jobsift/internal/server"
	"github.com/jobsift/jobsift/pkg/db"
	"github.com/jobsift/jobsift/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		config.TrackingModule,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
