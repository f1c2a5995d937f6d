package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/database"
	"github.com/platinummonkey/tasklane/pkg/observability"
	"github.com/platinummonkey/tasklane/pkg/rbac"
)

// environment is shared by every subcommand.
type environment struct {
	out io.Writer
	log *logrus.Logger
}

// connFlags are the connection flags common to database commands.
type connFlags struct {
	driver   *string
	dsn      *string
	redisURL *string
}

func addConnFlags(fs *flag.FlagSet) *connFlags {
	return &connFlags{
		driver:   fs.String("driver", envOr("TASKLANE_DB_DRIVER", database.DriverPostgres), "Database driver (postgres or sqlite3)"),
		dsn:      fs.String("dsn", os.Getenv("TASKLANE_DATABASE_URL"), "Database connection string"),
		redisURL: fs.String("redis-url", os.Getenv("TASKLANE_REDIS_URL"), "Redis URL of the shared permission cache, if any"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// session holds the stores for one command run.
type session struct {
	db       *sql.DB
	driver   string
	redis    *redis.Client
	store    *rbac.SQLStore
	admin    *rbac.Admin
	resolver *rbac.Resolver
}

func (e *environment) open(ctx context.Context, f *connFlags) (*session, error) {
	if *f.dsn == "" {
		return nil, fmt.Errorf("-dsn is required")
	}
	db, err := database.Open(ctx, database.Config{Driver: *f.driver, DSN: *f.dsn})
	if err != nil {
		return nil, err
	}

	s := &session{db: db, driver: *f.driver}
	var cache rbac.PermissionCache = rbac.NoopCache{}
	if *f.redisURL != "" {
		opts, err := redis.ParseURL(*f.redisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		s.redis = redis.NewClient(opts)
		cache = rbac.NewRedisCache(s.redis, "", 0)
	}

	events, err := activity.NewDBLogger(db)
	if err != nil {
		s.Close()
		return nil, err
	}
	libLogger := observability.NewLogger(observability.WarnLevel, os.Stderr)

	s.store = rbac.NewSQLStore(db)
	s.admin = rbac.NewAdmin(s.store, rbac.DefaultRegistry(),
		rbac.WithAdminCache(cache),
		rbac.WithActivityLogger(events),
		rbac.WithAdminLogger(libLogger),
	)
	s.resolver = rbac.NewResolver(s.store, rbac.WithLogger(libLogger))
	return s, nil
}

func (s *session) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	return s.db.Close()
}
