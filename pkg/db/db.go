package db

import (
	"context"
	"time"

	"github.com/listingcraft/listingcraft/internal/config"
	"github.com/listingcraft/listingcraft/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Module provides the shared *gorm.DB handle.
var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
}

// New opens the database from config, instruments it with tracing and
// connection-pool metrics, and ties the pool to the fx lifecycle.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.NewGormLogger(logger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Cfg.DBName))); err != nil {
		return nil, err
	}

	if p.Cfg.MetricsEnabled {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          p.Cfg.DBName,
			RefreshInterval: 15,
		})); err != nil {
			p.Log.Warn("failed to register db metrics plugin", zap.Error(err))
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(p.Cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(p.Cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(p.Cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(p.Cfg.DBConnMaxIdleTime) * time.Second)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Log.Info("closing database pool")
			return sqlDB.Close()
		},
	})

	return conn, nil
}
