package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/clock"
	"github.com/dinehall/dinehall/internal/config"
	"github.com/dinehall/dinehall/internal/logger"
	"github.com/dinehall/dinehall/internal/member"
	"github.com/dinehall/dinehall/internal/migration"
	"github.com/dinehall/dinehall/internal/notification"
	"github.com/dinehall/dinehall/internal/observability"
	"github.com/dinehall/dinehall/internal/providers"
	"github.com/dinehall/dinehall/internal/server"
	"github.com/dinehall/dinehall/internal/session"
	"github.com/dinehall/dinehall/internal/settlement"
	"github.com/dinehall/dinehall/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		changefeed.Module,

		// Functional domains
		member.Module,
		session.Module,
		settlement.Module,
		notification.Module,
		providers.Module,

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
