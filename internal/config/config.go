package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// JWTSecret signs and verifies customer bearer tokens.
	JWTSecret string

	// RedisURL enables the cross-process invalidation bus when set.
	RedisURL            string
	InvalidationChannel string

	// Storefront side.
	BackendURL              string
	CustomerToken           string
	PolicyLookupConcurrency int
	HTTPMaxRetries          int
	HTTPTimeout             time.Duration
}

// Load reads the process environment, after overlaying any local .env files.
func Load() *Config {
	LoadEnv(nil)

	return &Config{
		DBSource:                os.Getenv("DB_SOURCE"),
		Port:                    GetEnv("SERVER_PORT", "8080"),
		Env:                     GetEnv("ENVIRONMENT", "development"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		RedisURL:                os.Getenv("REDIS_URL"),
		InvalidationChannel:     GetEnv("INVALIDATION_CHANNEL", "coinledger:invalidate"),
		BackendURL:              GetEnv("BACKEND_URL", "http://localhost:8080"),
		CustomerToken:           os.Getenv("CUSTOMER_TOKEN"),
		PolicyLookupConcurrency: GetEnvInt("POLICY_LOOKUP_CONCURRENCY", 8),
		HTTPMaxRetries:          GetEnvInt("HTTP_MAX_RETRIES", 2),
		HTTPTimeout:             GetEnvDuration("HTTP_TIMEOUT", 5*time.Second),
	}
}

// LoadServer is Load plus the settings the points backend cannot run without.
func LoadServer() (*Config, error) {
	cfg := Load()
	if cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	return cfg, nil
}

// LoadEnv loads environment variables from .env files when present.
func LoadEnv(logger *logrus.Logger) {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil && logger != nil {
			logger.WithError(err).Warnf("Failed to load %s", file)
		}
	}
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetLogLevel gets the log level from environment
func GetLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
