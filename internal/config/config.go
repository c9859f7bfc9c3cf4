package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "your-super-secret-jwt-key", "password",
}

type Config struct {
	Port                     int    `env:"PORT" envDefault:"4000"`
	LogLevel                 string `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret                string `env:"JWT_SECRET,required"`
	TokenTTLHours            int    `env:"TOKEN_TTL_HOURS" envDefault:"24"`
	CodeWaitTimeoutSeconds   int    `env:"CODE_WAIT_TIMEOUT_SECONDS" envDefault:"60"`
	EngineURL                string `env:"ENGINE_URL,required"`
	EngineCallbackURL        string `env:"ENGINE_CALLBACK_URL" envDefault:""`
	EngineSignatureSecret    string `env:"ENGINE_SIGNATURE_SECRET"`
	RedisURL                 string `env:"REDIS_URL" envDefault:""`
	DatabaseURL              string `env:"DATABASE_URL" envDefault:""`
	UploadDir                string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxBodyBytes             int64  `env:"MAX_BODY_BYTES" envDefault:"52428800"`
	MediaFetchTimeoutSeconds int    `env:"MEDIA_FETCH_TIMEOUT_SECONDS" envDefault:"30"`
	MediaMaxBytes            int64  `env:"MEDIA_MAX_BYTES" envDefault:"67108864"`
	PendingSessionTTLSeconds int    `env:"PENDING_SESSION_TTL_SECONDS" envDefault:"0"`
	AuditRetentionHours      int    `env:"AUDIT_RETENTION_HOURS" envDefault:"720"`
	StaticDir                string `env:"STATIC_DIR" envDefault:""`
	AppEnv                   string `env:"APP_ENV" envDefault:""`
}

// IsProduction reports whether strict production checks apply.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c *Config) CodeWaitTimeout() time.Duration {
	return time.Duration(c.CodeWaitTimeoutSeconds) * time.Second
}

func (c *Config) MediaFetchTimeout() time.Duration {
	return time.Duration(c.MediaFetchTimeoutSeconds) * time.Second
}

func (c *Config) PendingSessionTTL() time.Duration {
	return time.Duration(c.PendingSessionTTLSeconds) * time.Second
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("TOKEN_TTL_HOURS must be positive")
	}
	if c.CodeWaitTimeoutSeconds <= 0 {
		return fmt.Errorf("CODE_WAIT_TIMEOUT_SECONDS must be positive: the pairing code wait needs a ceiling")
	}
	if !strings.HasPrefix(c.EngineURL, "http://") && !strings.HasPrefix(c.EngineURL, "https://") {
		return fmt.Errorf("ENGINE_URL must be an http(s) URL")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}

		if c.EngineSignatureSecret == "" {
			log.Warn().Msg("ENGINE_SIGNATURE_SECRET is empty in production: engine callback signature verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
