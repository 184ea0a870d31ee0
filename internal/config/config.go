package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Durable store
	StoreDriver      string `mapstructure:"STORE_DRIVER"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32  `mapstructure:"DB_MIN_CONNS"`
	SQLitePath       string `mapstructure:"SQLITE_PATH"`
	PHIEncryptionKey string `mapstructure:"PHI_ENCRYPTION_KEY"`

	// Client auth for the API and the extraction proxy
	AuthMode  string `mapstructure:"AUTH_MODE"` // "token", "jwt", or "" (inferred)
	AppToken  string `mapstructure:"APP_TOKEN"`
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// LLM extraction upstream
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `mapstructure:"ANTHROPIC_MODEL"`
	AnthropicBaseURL string `mapstructure:"ANTHROPIC_BASE_URL"`

	// Outbound email
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", StoreDriverSQLite)
	v.SetDefault("SQLITE_PATH", "data/patient_records.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022")
	v.SetDefault("SMTP_PORT", 587)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "CORS_ORIGINS",
		"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"SQLITE_PATH", "PHI_ENCRYPTION_KEY",
		"AUTH_MODE", "APP_TOKEN", "JWT_SECRET",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	} {
		v.BindEnv(key) //nolint:errcheck // key is never empty
	}

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective client auth mode. If AUTH_MODE is
// set it wins; otherwise development runs open, a configured JWT secret
// means "jwt", and anything else falls back to the static app token.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	if c.JWTSecret != "" {
		return "jwt"
	}
	return "token"
}

// Validate checks the configuration is safe to run. Production requires the
// PHI encryption key (64 hex chars for a 32-byte AES-256 key) and a real
// client credential.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", StoreDriverSQLite)
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverSQLite, StoreDriverPostgres, c.StoreDriver)
	}

	mode := c.ResolvedAuthMode()
	switch mode {
	case "development":
	case "token":
		if c.AppToken == "" {
			return fmt.Errorf("APP_TOKEN is required when AUTH_MODE is \"token\"")
		}
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is \"jwt\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\", \"token\", or \"jwt\", got %q", mode)
	}

	if c.IsProduction() && c.PHIEncryptionKey == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}
	if c.PHIEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.PHIEncryptionKey)
		if err != nil {
			return fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
