package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/auth"
	"github.com/platinummonkey/tasklane/pkg/config"
	"github.com/platinummonkey/tasklane/pkg/database"
	"github.com/platinummonkey/tasklane/pkg/observability"
	"github.com/platinummonkey/tasklane/pkg/rbac"
	"github.com/platinummonkey/tasklane/pkg/server"
	"github.com/platinummonkey/tasklane/pkg/settings"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("tasklane exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", otelProviders.Shutdown)

	db, err := database.Open(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	logger.WithField("driver", cfg.Database.Driver).Info("Connected to database")

	if cfg.Database.AutoMigrate {
		if err := migrateAll(ctx, db, cfg.Database.Driver, logger); err != nil {
			return err
		}
	}

	var (
		metrics  *observability.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
		gatherer = registry
	}

	cache, redisClient, err := newPermissionCache(cfg.Cache)
	if err != nil {
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	activityLogger, activityStore, err := newActivitySink(cfg.Activity, db, logger)
	if err != nil {
		return err
	}
	shutdown.Register("activity", func(context.Context) error { return activityLogger.Close() })

	// RBAC
	rbacStore := rbac.NewSQLStore(db)
	admin := rbac.NewAdmin(rbacStore, rbac.DefaultRegistry(),
		rbac.WithAdminCache(cache),
		rbac.WithActivityLogger(activityLogger),
		rbac.WithAdminLogger(logger),
		rbac.WithAdminMetrics(metrics),
	)
	if err := admin.EnsurePermissions(ctx); err != nil {
		return err
	}
	if created, err := admin.SeedSystemRoles(ctx); err != nil {
		return err
	} else if created > 0 {
		logger.WithField("created", created).Info("Seeded system roles")
	}
	permissions := rbac.NewResolver(rbacStore,
		rbac.WithCache(cache),
		rbac.WithLogger(logger),
		rbac.WithMetrics(metrics),
	)
	var guardOpts []rbac.MiddlewareOption
	if cfg.Auth.LegacyAdminBypass {
		logger.Warn("Legacy admin role bypass is enabled")
		guardOpts = append(guardOpts, rbac.AllowRoleBypass(auth.RoleAdmin))
	}

	// Settings
	defaults, closeDefaults, err := newSettingsDefaults(cfg.Settings, logger)
	if err != nil {
		return err
	}
	shutdown.Register("settings-defaults", func(context.Context) error { return closeDefaults() })
	settingsStore := settings.NewSQLStore(db)
	settingsResolver, err := settings.NewResolver(settingsStore, defaults,
		settings.WithPolicy(newSettingsPolicy(cfg.Settings)),
		settings.WithLogger(logger),
		settings.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	// Activity retention
	if activityStore != nil {
		policy := activity.RetentionPolicy{MaxAge: cfg.Activity.Retention}
		job, err := activity.NewRetentionJob(activityStore, policy, cfg.Activity.CleanupSchedule, logger, metrics)
		if err != nil {
			return err
		}
		job.Start()
		shutdown.Register("activity-retention", job.Stop)
	}

	apiServer := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, server.Dependencies{
		Logger:           logger,
		Metrics:          metrics,
		Tokens:           auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, 0),
		RBACAdmin:        admin,
		RBACStore:        rbacStore,
		Permissions:      permissions,
		Guard:            rbac.NewMiddleware(permissions, guardOpts...),
		Settings:         settings.NewService(settingsStore, defaults, activityLogger, logger),
		SettingsResolver: settingsResolver,
		ActivityStore:    activityStore,
	})

	checker := observability.NewHealthChecker(db, redisClient).WithVersion(version)
	healthServer := server.NewHealthServer(cfg.Server.Host, cfg.Server.HealthPort, checker, gatherer)

	go func() {
		defer observability.RecoverPanic(logger, "health server")
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()
	shutdown.Register("health-server", healthServer.Shutdown)

	apiErrs := apiServer.Start()
	shutdown.Register("api-server", apiServer.Shutdown)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err, ok := <-apiErrs; ok && err != nil {
			logger.WithError(err).Error("API server failed")
			cancel()
		}
	}()

	return shutdown.WaitForSignal(runCtx)
}
