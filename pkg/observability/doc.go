// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health probes and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("project_id", 7).Info("settings resolved")
//
// Request-scoped loggers are placed in the context by the request ID
// middleware and retrieved with FromContext, which also attaches the request
// ID, the authenticated user ID and the active trace/span IDs.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.PermissionChecksTotal.WithLabelValues("granted").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
package observability
