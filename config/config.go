// Package config loads the bot's configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/amazo-world/amazo-bot/pkg/validator"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Redis    RedisConfig
	Telegram TelegramConfig
	Giveaway GiveawayConfig
	HTTP     HTTPConfig
	Tracing  TracingConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Environment Environment `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production" label:"APP_ENV"`
	Debug       bool        `envconfig:"APP_DEBUG"`
	Version     string      `envconfig:"APP_VERSION" default:"dev"`

	// LogFormat is json or text. Empty picks json in production.
	LogFormat string `envconfig:"LOG_FORMAT" validate:"omitempty,oneof=json text" label:"LOG_FORMAT"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0" label:"SHUTDOWN_TIMEOUT"`
}

// StoreConfig selects and configures the giveaway store.
type StoreConfig struct {
	// Driver is postgres, sqlite for a single-host install, or memory for
	// local development.
	Driver string `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres sqlite memory" label:"STORE_DRIVER"`

	// DatabaseURL is the Supabase Postgres DSN.
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres" label:"DATABASE_URL"`

	MaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gt=0" label:"DB_MAX_CONNS"`
	ConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/amazo.sqlite" validate:"required_if=Driver sqlite" label:"SQLITE_PATH"`

	// AutoMigrate applies pending migrations on serve.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE"`
}

// RedisConfig configures the conversation store.
type RedisConfig struct {
	Enabled bool   `envconfig:"REDIS_ENABLED"`
	URL     string `envconfig:"REDIS_URL" validate:"required_if=Enabled true" label:"REDIS_URL"`

	// ConversationTTL is how long registration scratch data lives.
	ConversationTTL time.Duration `envconfig:"CONVERSATION_TTL" default:"30m" validate:"gt=0" label:"CONVERSATION_TTL"`
}

// TelegramConfig holds Telegram Bot settings.
type TelegramConfig struct {
	Token   string `envconfig:"BOT_TOKEN" required:"true" validate:"notblank" label:"BOT_TOKEN"`
	AdminID int64  `envconfig:"ADMIN_ID" required:"true" validate:"gt=0" label:"ADMIN_ID"`

	// Mode is polling or webhook.
	Mode          string `envconfig:"TELEGRAM_MODE" default:"polling" validate:"oneof=polling webhook" label:"TELEGRAM_MODE"`
	WebhookURL    string `envconfig:"TELEGRAM_WEBHOOK_URL" validate:"required_if=Mode webhook" label:"TELEGRAM_WEBHOOK_URL"`
	WebhookSecret string `envconfig:"TELEGRAM_WEBHOOK_SECRET" validate:"required_if=Mode webhook" label:"TELEGRAM_WEBHOOK_SECRET"`

	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30" validate:"gt=0" label:"TELEGRAM_POLL_TIMEOUT"`

	CommunityURL string `envconfig:"COMMUNITY_URL" default:"https://t.me/Amaz0World"`

	MaxConcurrentUpdates int `envconfig:"MAX_CONCURRENT_UPDATES" default:"100" validate:"gt=0" label:"MAX_CONCURRENT_UPDATES"`
	RateLimitPerMinute   int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30" validate:"gt=0" label:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst       int `envconfig:"RATE_LIMIT_BURST" default:"5" validate:"gt=0" label:"RATE_LIMIT_BURST"`
}

// GiveawayConfig holds the rules of the giveaway itself.
type GiveawayConfig struct {
	WalletMinLength  int `envconfig:"WALLET_MIN_LENGTH" default:"30" validate:"gt=0" label:"WALLET_MIN_LENGTH"`
	WalletMaxLength  int `envconfig:"WALLET_MAX_LENGTH" default:"50" validate:"gtefield=WalletMinLength" label:"WALLET_MAX_LENGTH"`
	LeaderboardLimit int `envconfig:"LEADERBOARD_LIMIT" default:"10" validate:"gt=0" label:"LEADERBOARD_LIMIT"`

	BroadcastRate        float64 `envconfig:"BROADCAST_RATE" default:"25" validate:"gt=0" label:"BROADCAST_RATE"`
	BroadcastConcurrency int     `envconfig:"BROADCAST_CONCURRENCY" default:"4" validate:"gt=0" label:"BROADCAST_CONCURRENCY"`
}

// HTTPConfig configures the health, metrics and webhook server.
type HTTPConfig struct {
	Host string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port int    `envconfig:"HTTP_PORT" default:"8080" validate:"gt=0,lte=65535" label:"HTTP_PORT"`
}

// TracingConfig configures OpenTelemetry tracing. The OTLP exporter reads
// its endpoint from the standard OTEL_EXPORTER_OTLP_* variables.
type TracingConfig struct {
	Enabled     bool    `envconfig:"TRACING_ENABLED"`
	Exporter    string  `envconfig:"TRACING_EXPORTER" default:"otlp" validate:"oneof=otlp stdout" label:"TRACING_EXPORTER"`
	SampleRatio float64 `envconfig:"TRACING_SAMPLE_RATIO" default:"1" validate:"gte=0,lte=1" label:"TRACING_SAMPLE_RATIO"`
}

// LoadDotEnv copies KEY=VALUE lines from path into the process environment.
// Variables that are already set keep their value. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []any{&cfg.App, &cfg.Store, &cfg.Redis, &cfg.Telegram, &cfg.Giveaway, &cfg.HTTP, &cfg.Tracing}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and the rules that span sections.
func (c *Config) Validate() error {
	ctx := context.Background()
	v := validator.New()

	sections := []any{&c.App, &c.Store, &c.Redis, &c.Telegram, &c.Giveaway, &c.HTTP, &c.Tracing}
	for _, section := range sections {
		if err := validator.Struct(ctx, v, section); err != nil {
			return err
		}
	}

	if c.Store.Driver == DriverMemory && c.IsProduction() {
		return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// LogFormat resolves the log format.
func (c *Config) LogFormat() string {
	if c.App.LogFormat != "" {
		return c.App.LogFormat
	}
	if c.IsProduction() {
		return "json"
	}
	return "text"
}
