package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/steward/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (optional; empty URL selects the in-process cache)
	Redis RedisConfig

	// Capability cache configuration
	Cache CacheConfig

	// Audit log configuration
	Audit AuditConfig

	// Observability configuration
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

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration for the shared capability cache
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// CacheConfig holds capability cache tuning
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Retention time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("STEWARD_HOST", "0.0.0.0"),
		Port:            getEnv("STEWARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("STEWARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("STEWARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("STEWARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("STEWARD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("STEWARD_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("STEWARD_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("STEWARD_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("STEWARD_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("STEWARD_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("STEWARD_REDIS_URL", ""),
		Password: getEnv("STEWARD_REDIS_PASSWORD", ""),
		DB:       getEnvInt("STEWARD_REDIS_DB", 0),
		PoolSize: getEnvInt("STEWARD_REDIS_POOL_SIZE", 10),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        getEnvDuration("STEWARD_CACHE_TTL", 5*time.Minute),
		MaxEntries: getEnvInt("STEWARD_CACHE_MAX_ENTRIES", 1024),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Retention: getEnvDuration("STEWARD_AUDIT_RETENTION", 90*24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("STEWARD_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("STEWARD_METRICS_ENABLED", true),
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxOpenConns < c.Database.MaxIdleConns {
		return fmt.Errorf("max open connections must be at least max idle connections")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}

	if c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
