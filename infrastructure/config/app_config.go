package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spextract/database"
	"spextract/infrastructure/spclient"
	"spextract/infrastructure/tokenstore"
	"spextract/logging"
)

// State backends for the refresh token store.
const (
	StateBackendSQLite = "sqlite"
	StateBackendRedis  = "redis"
)

// AppConfig holds process-level configuration.
// This is infrastructure configuration, not the extraction job itself.
type AppConfig struct {
	ConfigPath   string
	DataDir      string
	StateBackend string
	StateKey     string
	Graph        *GraphConfig
	Database     *database.Config
	Redis        *tokenstore.RedisConfig
	Logging      *logging.Config
}

// GraphConfig holds the Graph client and transport settings.
type GraphConfig struct {
	BaseURL       string
	TokenURL      string
	ItemsPageSize int
	Retry         spclient.RetryConfig
}

// LoadAppConfigFromEnv loads complete application configuration from environment variables.
func LoadAppConfigFromEnv() *AppConfig {
	dataDir := getEnvWithDefault("DATA_DIR", "./data")
	return &AppConfig{
		ConfigPath:   getEnvWithDefault("CONFIG_PATH", filepath.Join(dataDir, "config.json")),
		DataDir:      dataDir,
		StateBackend: strings.ToLower(getEnvWithDefault("STATE_BACKEND", StateBackendSQLite)),
		StateKey:     getEnvWithDefault("STATE_KEY", "default"),
		Graph:        LoadGraphConfigFromEnv(),
		Database:     LoadDatabaseConfigFromEnv(dataDir),
		Redis:        LoadRedisConfigFromEnv(),
		Logging:      LoadLoggingConfigFromEnv(),
	}
}

// LoadGraphConfigFromEnv loads Graph client configuration from environment variables.
func LoadGraphConfigFromEnv() *GraphConfig {
	retry := spclient.DefaultRetryConfig()
	retry.MaxRetries = getEnvIntWithDefault("HTTP_MAX_RETRIES", retry.MaxRetries)
	retry.InitialInterval = getEnvDurationWithDefault("HTTP_BACKOFF_INITIAL", retry.InitialInterval)
	retry.MaxInterval = getEnvDurationWithDefault("HTTP_BACKOFF_MAX", retry.MaxInterval)
	retry.AttemptTimeout = getEnvDurationWithDefault("HTTP_TIMEOUT", retry.AttemptTimeout)
	retry.RateLimit = getEnvFloatWithDefault("HTTP_RATE_LIMIT_RPS", 0)
	retry.RateBurst = getEnvIntWithDefault("HTTP_RATE_LIMIT_BURST", 1)

	return &GraphConfig{
		BaseURL:       getEnvWithDefault("GRAPH_BASE_URL", spclient.DefaultBaseURL),
		TokenURL:      getEnvWithDefault("OAUTH_TOKEN_URL", spclient.DefaultTokenURL),
		ItemsPageSize: getEnvIntWithDefault("ITEMS_PAGE_SIZE", 0),
		Retry:         retry,
	}
}

// LoadDatabaseConfigFromEnv loads database configuration from environment variables.
func LoadDatabaseConfigFromEnv(dataDir string) *database.Config {
	return &database.Config{
		Path:              getEnvWithDefault("DB_PATH", filepath.Join(dataDir, "state.db")),
		BusyTimeoutMs:     getEnvIntWithDefault("DB_BUSY_TIMEOUT_MS", 5000),
		EnableWAL:         getEnvBoolWithDefault("DB_ENABLE_WAL", true),
		EnableForeignKeys: getEnvBoolWithDefault("DB_ENABLE_FOREIGN_KEYS", true),
		ConnMaxLifetime:   getEnvDurationWithDefault("DB_CONN_MAX_LIFETIME", time.Hour),
	}
}

// LoadRedisConfigFromEnv loads Redis configuration for the redis state backend.
func LoadRedisConfigFromEnv() *tokenstore.RedisConfig {
	return &tokenstore.RedisConfig{
		Addr:     getEnvWithDefault("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvIntWithDefault("REDIS_DB", 0),
		TTL:      getEnvDurationWithDefault("REDIS_TOKEN_TTL", 0),
	}
}

// LoadLoggingConfigFromEnv loads logging configuration from environment variables.
func LoadLoggingConfigFromEnv() *logging.Config {
	return &logging.Config{
		Level:  getEnvWithDefault("LOG_LEVEL", "info"),
		Format: getEnvWithDefault("LOG_FORMAT", "json"),
		Output: getEnvWithDefault("LOG_OUTPUT", "stdout"),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(v string, def bool) bool {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value, defaultValue)
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
