// Package app opens the repository and report cache selected by configuration.
// Both the HTTP server and posctl start from here.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/SamiSolomon/mobile/internal/cache"
	"github.com/SamiSolomon/mobile/internal/config"
	"github.com/SamiSolomon/mobile/internal/store"
	"github.com/SamiSolomon/mobile/internal/store/memory"
	pgstore "github.com/SamiSolomon/mobile/internal/store/postgres"
	"github.com/SamiSolomon/mobile/internal/store/sqlite"
)

// OpenRepository never falls back to memory when a database was asked for.
func OpenRepository(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		logger.WithField("driver", "postgres").Info("repository ready")
		return pg, nil
	case config.DriverMemory:
		logger.WithField("driver", "memory").Warn("repository is in-memory; data is lost on exit")
		return memory.NewSeeded(), nil
	default:
		db, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.WithFields(logrus.Fields{"driver": "sqlite", "path": cfg.SQLitePath}).Info("repository ready")
		return db, nil
	}
}

// OpenReportCache returns redis when it answers a ping, otherwise the no-op cache.
// The returned close func is always safe to call.
func OpenReportCache(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (cache.ReportCache, func() error) {
	if cfg.RedisAddr == "" {
		logger.Debug("report cache disabled")
		return cache.NoopReportCache{}, func() error { return nil }
	}
	redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.WithError(err).Warn("redis unavailable, report cache disabled")
		_ = redisCache.Close()
		return cache.NoopReportCache{}, func() error { return nil }
	}
	logger.WithField("addr", cfg.RedisAddr).Info("report cache: redis")
	return redisCache, redisCache.Close
}
