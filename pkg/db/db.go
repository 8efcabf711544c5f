package db

import (
	"context"
	"os"

	"tablerewards-client/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var Module = fx.Module("localstore",
	fx.Provide(New),
	fx.Invoke(RegisterClose),
)

// New opens the on-device SQLite store that holds pending redemption
// attempts. Only the idempotency-key bookkeeping lives here; redemption
// records themselves are never cached locally.
func New(cfg *config.Config) *gorm.DB {
	logLevel := logger.Info
	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(sqlite.Open(cfg.LocalStore.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		zap.L().Error("[LocalStore] Failed to open local store", zap.String("path", cfg.LocalStore.Path), zap.Error(err))
		os.Exit(1)
	}

	zap.L().Info("[LocalStore] Local store opened", zap.String("path", cfg.LocalStore.Path))

	return db
}

type closeParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
}

func RegisterClose(p closeParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
}
