package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ulule/limiter/v3"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	BaseURL          string
	FrontendURL      string
	EnableHSTS       bool
	OIDCIssuer       string
	OIDCJWKSURL      string
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	RateLimit        string
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
	MetricsEnabled   bool
	OpenAPIPath      string

	// LeaderboardCacheTTL is how long a computed leaderboard is served from Redis
	LeaderboardCacheTTL time.Duration
	// LeaderboardRefreshInterval is how often the worker schedules a refresh of every window
	LeaderboardRefreshInterval time.Duration
	// ReconcileDebounce delays reconcile jobs so bursts of entry edits collapse into one run
	ReconcileDebounce time.Duration
}

// QueueEnabled reports whether asynchronous jobs are configured
func (c *Config) QueueEnabled() bool {
	return c.RabbitMQURL != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCJWKSURL:      getEnv("OIDC_JWKS_URL", ""),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		RateLimit:        getEnv("RATE_LIMIT", "20-S"),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
		OpenAPIPath:      getEnv("OPENAPI_PATH", "api/openapi/openapi.yaml"),

		LeaderboardCacheTTL:        getEnvSeconds("LEADERBOARD_CACHE_TTL", 300),
		LeaderboardRefreshInterval: getEnvSeconds("LEADERBOARD_REFRESH_INTERVAL", 600),
		ReconcileDebounce:          getEnvSeconds("RECONCILE_DEBOUNCE", 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if _, err := limiter.NewRateFromFormatted(cfg.RateLimit); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT %q: %w", cfg.RateLimit, err)
	}

	if cfg.RabbitMQPrefetch < 1 {
		return nil, fmt.Errorf("RABBITMQ_PREFETCH must be at least 1")
	}

	return cfg, nil
}

// ValidateAuth checks the settings the HTTP server needs to verify bearer tokens
func (c *Config) ValidateAuth() error {
	if c.OIDCIssuer == "" {
		return fmt.Errorf("OIDC_ISSUER is required")
	}
	if c.OIDCJWKSURL == "" {
		return fmt.Errorf("OIDC_JWKS_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	seconds := getEnvInt(key, defaultSeconds)
	if seconds < 0 {
		seconds = defaultSeconds
	}
	return time.Duration(seconds) * time.Second
}
