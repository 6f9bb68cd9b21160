package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir      string   `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret          string   `mapstructure:"JWT_SECRET"`
	AuthDisabled       bool     `mapstructure:"AUTH_DISABLED"`
	InventoryBaseURL   string   `mapstructure:"INVENTORY_BASE_URL"`
	InventoryTimeoutMS int      `mapstructure:"INVENTORY_TIMEOUT_MS"`
	EventConsumerURLs  []string `mapstructure:"EVENT_CONSUMER_URLS"`
	EventSigningSecret string   `mapstructure:"EVENT_SIGNING_SECRET"`
	EventMaxRetries    int      `mapstructure:"EVENT_MAX_RETRIES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("INVENTORY_TIMEOUT_MS", 3000)
	v.SetDefault("EVENT_MAX_RETRIES", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("AUTH_DISABLED")
	v.BindEnv("INVENTORY_BASE_URL")
	v.BindEnv("INVENTORY_TIMEOUT_MS")
	v.BindEnv("EVENT_CONSUMER_URLS")
	v.BindEnv("EVENT_SIGNING_SECRET")
	v.BindEnv("EVENT_MAX_RETRIES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.EventConsumerURLs == nil {
		urls := v.GetString("EVENT_CONSUMER_URLS")
		if urls != "" {
			cfg.EventConsumerURLs = strings.Split(urls, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if !c.AuthDisabled && c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when auth is enabled")
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EventMaxRetries < 0 {
		return fmt.Errorf("EVENT_MAX_RETRIES must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// InventoryTimeout returns the inventory client timeout as a duration.
func (c *Config) InventoryTimeout() time.Duration {
	return time.Duration(c.InventoryTimeoutMS) * time.Millisecond
}
