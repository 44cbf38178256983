package main

import (
	"github.com/adpilot-io/adpilot/internal/clock"
	"github.com/adpilot-io/adpilot/internal/config"
	"github.com/adpilot-io/adpilot/internal/logger"
	"github.com/adpilot-io/adpilot/internal/server"
	"github.com/adpilot-io/adpilot/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
