package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	ClaimsAPI ClaimsAPIConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Explorer  ExplorerConfig
	OTEL      OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
	Env  string
	// AllowedOrigins lists CORS origins; "*" allows any
	AllowedOrigins []string
}

// ClaimsAPIConfig holds configuration for the claims data source
type ClaimsAPIConfig struct {
	// Source selects the ClaimsSource implementation: "http" or "postgres"
	Source          string
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// CacheConfig holds response and relationship cache configuration
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend     string
	ResponseTTL time.Duration
	RelationTTL time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ExplorerConfig holds explorer session configuration
type ExplorerConfig struct {
	PageSize    int
	SessionTTL  time.Duration
	EventBuffer int
	Heartbeat   time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Env:  getEnv("APP_ENV", "development"),

			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		ClaimsAPI: ClaimsAPIConfig{
			Source:          getEnv("CLAIMS_SOURCE", "http"),
			BaseURL:         getEnv("CLAIMS_API_URL", "http://localhost:8000/api/claims"),
			Timeout:         getEnvAsDuration("CLAIMS_API_TIMEOUT", 10*time.Second),
			BreakerFailures: uint32(getEnvAsInt("CLAIMS_API_BREAKER_FAILURES", 5)),
			BreakerTimeout:  getEnvAsDuration("CLAIMS_API_BREAKER_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "juno_claims"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Cache: CacheConfig{
			Backend:     getEnv("CACHE_BACKEND", "memory"),
			ResponseTTL: getEnvAsDuration("CACHE_RESPONSE_TTL", 5*time.Minute),
			RelationTTL: getEnvAsDuration("CACHE_RELATION_TTL", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Explorer: ExplorerConfig{
			PageSize:    getEnvAsInt("EXPLORER_PAGE_SIZE", 100),
			SessionTTL:  getEnvAsDuration("EXPLORER_SESSION_TTL", 30*time.Minute),
			EventBuffer: getEnvAsInt("EXPLORER_EVENT_BUFFER", 32),
			Heartbeat:   getEnvAsDuration("EXPLORER_SSE_HEARTBEAT", 30*time.Second),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "market-explorer"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.ClaimsAPI.Source {
	case "http", "postgres":
	default:
		return fmt.Errorf("invalid CLAIMS_SOURCE %q: want http or postgres", c.ClaimsAPI.Source)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: want memory or redis", c.Cache.Backend)
	}
	if c.Cache.ResponseTTL <= 0 {
		return fmt.Errorf("CACHE_RESPONSE_TTL must be positive")
	}
	if c.Explorer.PageSize <= 0 {
		return fmt.Errorf("EXPLORER_PAGE_SIZE must be positive")
	}
	return nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
