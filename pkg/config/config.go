package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env       string
	Server    ServerConfig
	Dispatch  DispatchConfig
	Geocoding GeocodingConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Sessions  SessionConfig
	OTEL      OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// DispatchConfig describes the dispatch REST backend and refresh policy
type DispatchConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	ForwardTimeout time.Duration
	PollInterval   time.Duration
	PageSize       int
}

// GeocodingConfig holds reverse geocoding provider configuration
type GeocodingConfig struct {
	// Provider is one of "http", "google" or "mock".
	Provider         string
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	BreakerFailures  int
	BreakerOpenFor   time.Duration
	CacheTTLSeconds  int
	CoordinatePlaces int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// DatabaseConfig holds the audit journal database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	JWTSecret string
	// AllowUnverified accepts unsigned tokens; development only.
	AllowUnverified bool
}

// SessionConfig bounds the per-actor coordinator registry
type SessionConfig struct {
	MaxSessions int
	IdleTTL     time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment wins.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
			// Wildcard unless configured; set ALLOWED_ORIGINS in production.
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", nil),
		},
		Dispatch: DispatchConfig{
			BaseURL:        getEnv("DISPATCH_API_URL", "http://localhost:3000/api"),
			RequestTimeout: getEnvAsDuration("DISPATCH_REQUEST_TIMEOUT", 10*time.Second),
			ForwardTimeout: getEnvAsDuration("DISPATCH_FORWARD_TIMEOUT", 15*time.Second),
			PollInterval:   getEnvAsDuration("DISPATCH_POLL_INTERVAL", 30*time.Second),
			PageSize:       getEnvAsInt("DISPATCH_PAGE_SIZE", 10),
		},
		Geocoding: GeocodingConfig{
			Provider:         getEnv("GEOCODING_PROVIDER", "mock"),
			BaseURL:          getEnv("GEOCODING_URL", "http://localhost:3000/api"),
			APIKey:           getEnv("GEOCODING_API_KEY", ""),
			Timeout:          getEnvAsDuration("GEOCODING_TIMEOUT", 5*time.Second),
			RatePerSecond:    getEnvAsFloat("GEOCODING_RATE_PER_SECOND", 1),
			Burst:            getEnvAsInt("GEOCODING_BURST", 2),
			BreakerFailures:  getEnvAsInt("GEOCODING_BREAKER_FAILURES", 5),
			BreakerOpenFor:   getEnvAsDuration("GEOCODING_BREAKER_OPEN_FOR", 30*time.Second),
			CacheTTLSeconds:  getEnvAsInt("GEOCODING_CACHE_TTL_SECONDS", 86400),
			CoordinatePlaces: getEnvAsInt("GEOCODING_COORDINATE_PLACES", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("AUDIT_DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "dispatch_audit"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", ""),
			AllowUnverified: getEnvAsBool("AUTH_ALLOW_UNVERIFIED", false),
		},
		Sessions: SessionConfig{
			MaxSessions: getEnvAsInt("SESSION_MAX", 512),
			IdleTTL:     getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "dispatch-lifecycle"),
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

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Dispatch.BaseURL == "" {
		return fmt.Errorf("DISPATCH_API_URL is required")
	}
	if c.Dispatch.PageSize < 1 {
		return fmt.Errorf("DISPATCH_PAGE_SIZE must be positive, got %d", c.Dispatch.PageSize)
	}
	if c.Dispatch.PollInterval <= 0 {
		return fmt.Errorf("DISPATCH_POLL_INTERVAL must be positive")
	}
	if c.Dispatch.RequestTimeout <= 0 || c.Dispatch.ForwardTimeout <= 0 {
		return fmt.Errorf("dispatch timeouts must be positive")
	}
	if c.Auth.JWTSecret == "" && !c.Auth.AllowUnverified {
		return fmt.Errorf("AUTH_JWT_SECRET is required unless AUTH_ALLOW_UNVERIFIED is set")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getEnvAsSlice(key string, defaultValue []string) []string {
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
	return out
}
