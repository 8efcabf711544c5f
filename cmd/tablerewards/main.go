package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"tablerewards-client/internal/httpapi"
	"tablerewards-client/pkg/config"
	"tablerewards-client/pkg/db"
	"tablerewards-client/pkg/logger"
	"tablerewards-client/pkg/redis"
	"tablerewards-client/services/balance"
	"tablerewards-client/services/countdown"
	"tablerewards-client/services/feed"
	"tablerewards-client/services/redemption"
	"tablerewards-client/services/reservation"
	"tablerewards-client/services/tracker"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		redis.Module,
		db.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		feed.Module,
		redemption.Module,
		countdown.Module,
		tracker.Module,
		balance.Module,
		reservation.Module,
		httpapi.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
