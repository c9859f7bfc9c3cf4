package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 4000}
		assert.Equal(t, ":4000", cfg.Addr())
	})

	t.Run("TokenTTL converts hours to duration", func(t *testing.T) {
		cfg := &Config{TokenTTLHours: 24}
		assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	})

	t.Run("CodeWaitTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{CodeWaitTimeoutSeconds: 60}
		assert.Equal(t, 60*time.Second, cfg.CodeWaitTimeout())
	})

	t.Run("PendingSessionTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{PendingSessionTTLSeconds: 600}
		assert.Equal(t, 10*time.Minute, cfg.PendingSessionTTL())
	})

	t.Run("AuditRetention converts hours to duration", func(t *testing.T) {
		cfg := &Config{AuditRetentionHours: 48}
		assert.Equal(t, 48*time.Hour, cfg.AuditRetention())
	})

	t.Run("IsProduction matches APP_ENV case-insensitively", func(t *testing.T) {
		assert.True(t, (&Config{AppEnv: "Production"}).IsProduction())
		assert.False(t, (&Config{AppEnv: "staging"}).IsProduction())
		assert.False(t, (&Config{}).IsProduction())
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:              strings.Repeat("s", 40),
			TokenTTLHours:          24,
			CodeWaitTimeoutSeconds: 60,
			EngineURL:              "http://engine:3000",
		}
	}

	t.Run("accepts valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate(true))
	})

	t.Run("rejects zero code wait ceiling", func(t *testing.T) {
		cfg := valid()
		cfg.CodeWaitTimeoutSeconds = 0
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects non-http engine url", func(t *testing.T) {
		cfg := valid()
		cfg.EngineURL = "engine:3000"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects short secret in production only", func(t *testing.T) {
		cfg := valid()
		cfg.JWTSecret = "short"
		assert.NoError(t, cfg.Validate(false))
		assert.Error(t, cfg.Validate(true))
	})
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "JWT_SECRET", "ENGINE_URL", "TOKEN_TTL_HOURS",
		"CODE_WAIT_TIMEOUT_SECONDS", "LOG_LEVEL", "REDIS_URL", "DATABASE_URL",
		"PENDING_SESSION_TTL_SECONDS",
	}
	originalEnv := make(map[string]string, len(keys))
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("JWT_SECRET", "test-secret")
		os.Setenv("ENGINE_URL", "http://localhost:3000")
		os.Unsetenv("PORT")
		os.Unsetenv("TOKEN_TTL_HOURS")
		os.Unsetenv("CODE_WAIT_TIMEOUT_SECONDS")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("PENDING_SESSION_TTL_SECONDS")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 4000, cfg.Port)
		assert.Equal(t, "test-secret", cfg.JWTSecret)
		assert.Equal(t, 24, cfg.TokenTTLHours)
		assert.Equal(t, 60, cfg.CodeWaitTimeoutSeconds)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "uploads", cfg.UploadDir)
		assert.Equal(t, int64(50<<20), cfg.MaxBodyBytes)
		assert.Empty(t, cfg.RedisURL)
		assert.Empty(t, cfg.DatabaseURL)
		assert.Zero(t, cfg.PendingSessionTTL())
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("JWT_SECRET", "test-secret")
		os.Setenv("ENGINE_URL", "http://localhost:3000")
		os.Setenv("PORT", "8080")
		os.Setenv("TOKEN_TTL_HOURS", "2")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 2*time.Hour, cfg.TokenTTL())
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required JWT_SECRET", func(t *testing.T) {
		os.Unsetenv("JWT_SECRET")
		os.Setenv("ENGINE_URL", "http://localhost:3000")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required ENGINE_URL", func(t *testing.T) {
		os.Setenv("JWT_SECRET", "test-secret")
		os.Unsetenv("ENGINE_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
