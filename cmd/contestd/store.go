package main

import (
	"context"
	"fmt"

	"github.com/SAFERMOON/SAFERWINNING/internal/asset"
	"github.com/SAFERMOON/SAFERWINNING/internal/config"
	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
	"github.com/SAFERMOON/SAFERWINNING/internal/storage/postgres"
	"github.com/SAFERMOON/SAFERWINNING/internal/storage/redis"
)

// ledgerStore keeps the contest journal and the token ledger side by side.
type ledgerStore interface {
	contest.Store
	asset.StateStore
}

// openStore returns the configured store and a func that releases it.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (ledgerStore, func(), error) {
	entry := logger.WithField("driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		entry.Info("contest journal opened")
		return s, func() { closeWith(logger, s.Close) }, nil
	case config.DriverRedis:
		s, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		entry.Info("contest journal opened")
		return s, func() { closeWith(logger, s.Close) }, nil
	default:
		entry.Warn("in-memory journal; state is lost on restart")
		return contest.NewMemoryStore(), func() {}, nil
	}
}

func closeWith(logger *logging.Logger, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.WithError(err).Warn("close store")
	}
}
