package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Auth          AuthConfig
	Settings      SettingsConfig
	Activity      ActivityConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig selects the SQL driver and pool settings.
type DatabaseConfig struct {
	Driver          string // "postgres" or "sqlite3"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	AutoMigrate     bool
}

// CacheConfig selects the permission cache backend.
type CacheConfig struct {
	Type          string // "none", "memory" or "redis"
	TTL           time.Duration
	MaxEntries    int
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	// LegacyAdminBypass lets the coarse "admin" role claim skip permission
	// checks in the HTTP middleware. Off by default.
	LegacyAdminBypass bool
}

// SettingsConfig configures the settings resolver.
type SettingsConfig struct {
	// DefaultsFile optionally overrides the embedded system defaults.
	DefaultsFile string
	// WatchDefaults reloads DefaultsFile on change.
	WatchDefaults bool
	// UserOverridable lists categories where a user setting always wins.
	// Empty means the built-in policy.
	UserOverridable []string
}

// ActivityConfig configures the activity log sink and retention job.
type ActivityConfig struct {
	Sink            string // "db", "log" or "none"
	Retention       time.Duration
	CleanupSchedule string
	// AsyncBuffer queues events for background writes when positive.
	AsyncBuffer  int
	AsyncWorkers int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

const envPrefix = "TASKLANE_"

// LoadConfig loads configuration from TASKLANE_* environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Settings:      loadSettingsConfig(),
		Activity:      loadActivityConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "postgres"),
		DSN:             getEnv("DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
		AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Type:          strings.ToLower(getEnv("CACHE_TYPE", "memory")),
		TTL:           getEnvDuration("CACHE_TTL", 5*time.Minute),
		MaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 10000),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", -1),
		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 0),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:         getEnv("JWT_SECRET", ""),
		Issuer:            getEnv("JWT_ISSUER", "tasklane"),
		Audience:          getEnv("JWT_AUDIENCE", "tasklane-api"),
		LegacyAdminBypass: getEnvBool("LEGACY_ADMIN_BYPASS", false),
	}
}

func loadSettingsConfig() SettingsConfig {
	return SettingsConfig{
		DefaultsFile:    getEnv("SETTINGS_DEFAULTS_FILE", ""),
		WatchDefaults:   getEnvBool("SETTINGS_WATCH_DEFAULTS", true),
		UserOverridable: getEnvList("SETTINGS_USER_OVERRIDABLE"),
	}
}

func loadActivityConfig() ActivityConfig {
	return ActivityConfig{
		Sink:            strings.ToLower(getEnv("ACTIVITY_SINK", "db")),
		Retention:       getEnvDuration("ACTIVITY_RETENTION", 90*24*time.Hour),
		CleanupSchedule: getEnv("ACTIVITY_CLEANUP_SCHEDULE", "30 3 * * *"),
		AsyncBuffer:     getEnvInt("ACTIVITY_ASYNC_BUFFER", 1024),
		AsyncWorkers:    getEnvInt("ACTIVITY_ASYNC_WORKERS", 2),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "tasklane"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Cache.Type {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be none, memory, or redis)", c.Cache.Type)
	}
	if c.Cache.Type != "none" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	switch c.Activity.Sink {
	case "db", "log", "none":
	default:
		return fmt.Errorf("invalid activity sink: %s (must be db, log, or none)", c.Activity.Sink)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
