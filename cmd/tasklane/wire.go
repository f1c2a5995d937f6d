package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/config"
	"github.com/platinummonkey/tasklane/pkg/database"
	"github.com/platinummonkey/tasklane/pkg/observability"
	"github.com/platinummonkey/tasklane/pkg/rbac"
	"github.com/platinummonkey/tasklane/pkg/server"
	"github.com/platinummonkey/tasklane/pkg/settings"
)

// migrateAll applies every component schema in dependency order.
func migrateAll(ctx context.Context, db *sql.DB, driver string, logger *observability.Logger) error {
	for _, c := range server.Schema() {
		applied, err := database.Migrate(ctx, db, driver, c.Name, c.Migrations)
		if err != nil {
			return err
		}
		if applied > 0 {
			logger.WithFields(map[string]interface{}{
				"component": c.Name,
				"applied":   applied,
			}).Info("Applied migrations")
		}
	}
	return nil
}

// newPermissionCache returns the configured cache and, for redis, the client
// so health checks and shutdown can use it.
func newPermissionCache(cfg config.CacheConfig) (rbac.PermissionCache, *redis.Client, error) {
	switch cfg.Type {
	case "none":
		return rbac.NoopCache{}, nil, nil
	case "memory":
		return rbac.NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		if cfg.RedisDB >= 0 {
			opts.DB = cfg.RedisDB
		}
		if cfg.RedisPoolSize > 0 {
			opts.PoolSize = cfg.RedisPoolSize
		}
		client := redis.NewClient(opts)
		return rbac.NewRedisCache(client, "", cfg.TTL), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}

// newSettingsDefaults loads the system defaults table. The returned closer
// stops the file watcher, if any.
func newSettingsDefaults(cfg config.SettingsConfig, logger *observability.Logger) (settings.DefaultsProvider, func() error, error) {
	noop := func() error { return nil }
	if cfg.DefaultsFile == "" {
		return settings.EmbeddedDefaults(), noop, nil
	}
	if !cfg.WatchDefaults {
		defaults, err := settings.LoadDefaultsFile(cfg.DefaultsFile)
		if err != nil {
			return nil, nil, err
		}
		return defaults, noop, nil
	}

	watcher, err := settings.NewDefaultsWatcher(cfg.DefaultsFile, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Start(); err != nil {
		return nil, nil, err
	}
	return watcher, watcher.Close, nil
}

func newSettingsPolicy(cfg config.SettingsConfig) settings.Policy {
	if len(cfg.UserOverridable) == 0 {
		return settings.DefaultPolicy()
	}
	return settings.NewPolicy(cfg.UserOverridable)
}

// newActivitySink returns the activity logger and, for the db sink, the
// store that backs the query API and retention. Database writes go through
// an AsyncLogger when cfg.AsyncBuffer is positive.
func newActivitySink(cfg config.ActivityConfig, db *sql.DB, logger *observability.Logger) (activity.Logger, activity.Store, error) {
	switch cfg.Sink {
	case "db":
		l, err := activity.NewDBLogger(db)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AsyncBuffer > 0 {
			return activity.NewAsyncLogger(l, cfg.AsyncWorkers, cfg.AsyncBuffer, logger), l, nil
		}
		return l, l, nil
	case "log":
		return activity.NewSlogLogger(logger), nil, nil
	case "none":
		return activity.NoopLogger{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown activity sink %q", cfg.Sink)
	}
}
