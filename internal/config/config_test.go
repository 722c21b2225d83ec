package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("INVALIDATION_CHANNEL", "")
	t.Setenv("POLICY_LOOKUP_CONCURRENCY", "")
	t.Setenv("HTTP_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "coinledger:invalidate", cfg.InvalidationChannel)
	assert.Equal(t, 8, cfg.PolicyLookupConcurrency)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
}

func TestLoadServerRequiresDatabaseAndSecret(t *testing.T) {
	t.Setenv("DB_SOURCE", "")
	t.Setenv("JWT_SECRET", "s3cret")
	_, err := LoadServer()
	require.Error(t, err)

	t.Setenv("DB_SOURCE", "postgres://localhost/coins")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadServer()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/coins", cfg.DBSource)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("NUM", "notint")
	assert.Equal(t, 7, GetEnvInt("NUM", 7))
	t.Setenv("NUM", "100")
	assert.Equal(t, 100, GetEnvInt("NUM", 7))

	t.Setenv("WAIT", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("WAIT", time.Second))
	t.Setenv("WAIT", "soon")
	assert.Equal(t, time.Second, GetEnvDuration("WAIT", time.Second))
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, logrus.DebugLevel, GetLogLevel())
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, logrus.InfoLevel, GetLogLevel())
}
