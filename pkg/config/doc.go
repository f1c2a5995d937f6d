// Package config loads and validates application configuration from
// TASKLANE_* environment variables.
//
// Server:
//
//	TASKLANE_HOST="0.0.0.0"
//	TASKLANE_PORT="8080"
//	TASKLANE_HEALTH_PORT="9090"
//
// Database:
//
//	TASKLANE_DB_DRIVER="postgres"  # postgres, sqlite3
//	TASKLANE_DATABASE_URL="postgres://localhost/tasklane?sslmode=disable"
//	TASKLANE_DB_AUTO_MIGRATE="true"
//
// Permission cache:
//
//	TASKLANE_CACHE_TYPE="redis"    # none, memory, redis
//	TASKLANE_CACHE_TTL="5m"
//	TASKLANE_REDIS_URL="redis://localhost:6379/0"
//
// Authentication:
//
//	TASKLANE_JWT_SECRET="..."
//	TASKLANE_JWT_ISSUER="tasklane"
//	TASKLANE_JWT_AUDIENCE="tasklane-api"
//
// Settings and activity log:
//
//	TASKLANE_SETTINGS_DEFAULTS_FILE="/etc/tasklane/defaults.yaml"
//	TASKLANE_SETTINGS_USER_OVERRIDABLE="notifications,appearance,time_tracking"
//	TASKLANE_ACTIVITY_SINK="db"    # db, log, none
//	TASKLANE_ACTIVITY_RETENTION="2160h"
//	TASKLANE_ACTIVITY_CLEANUP_SCHEDULE="30 3 * * *"
//
// Observability:
//
//	TASKLANE_LOG_LEVEL="info"
//	TASKLANE_OTEL_ENABLED="true"
//	TASKLANE_OTEL_ENDPOINT="otel-collector:4317"
package config
