// Package config loads meridiand's ambient configuration from the
// environment (optionally seeded from a .env file), the same
// env-first shape the teacher repo's own pkg/config uses, but sourced
// through envconfig's struct tags rather than hand-written getEnv
// helpers — see DESIGN.md for why.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting meridiand needs to start.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Database
	DatabaseURL    string `envconfig:"DATABASE_URL" default:""`
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"auto"` // "postgres", "sqlite", or "auto"
	SQLitePath     string `envconfig:"SQLITE_PATH" default:""`
	LocalMode      bool   `envconfig:"MERIDIAN_LOCAL_MODE"`

	// Token cache
	RedisURL string `envconfig:"REDIS_URL" default:""`

	// Cloud relay transport
	RabbitMQURL      string `envconfig:"RABBITMQ_URL" default:""`
	CloudRelayQueue  string `envconfig:"CLOUD_RELAY_QUEUE" default:"meridian.relay"`
	CloudRelayEnable bool   `envconfig:"CLOUD_RELAY_ENABLE" default:"false"`

	// Server identity
	ServerName string `envconfig:"MERIDIAN_SERVER_NAME" default:"meridian"`

	// Rule storage
	RulesPath string `envconfig:"MERIDIAN_RULES_PATH" default:""`

	// Transports
	TCPAddr  string `envconfig:"TCP_ADDR" default:"0.0.0.0:8583"`
	WSAddr   string `envconfig:"WS_ADDR" default:"0.0.0.0:8584"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8585"`

	// Core tuning
	TickInterval  time.Duration `envconfig:"MERIDIAN_TICK_INTERVAL" default:"1s"`
	AsyncTimeout  time.Duration `envconfig:"MERIDIAN_ASYNC_TIMEOUT" default:"30s"`
	WorkQueueSize int           `envconfig:"MERIDIAN_WORK_QUEUE_SIZE" default:"256"`
}

// Load reads a .env file if present (ignoring its absence) and then
// populates Config from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.LocalMode = true
	}
	if cfg.LocalMode && cfg.DatabaseDriver == "auto" {
		cfg.DatabaseDriver = "sqlite"
	}
	return &cfg, nil
}

// IsDevelopment reports whether AppEnv names the development environment.
func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

// IsLocalMode reports whether the server should run against the local
// SQLite store with no external services configured.
func (c *Config) IsLocalMode() bool { return c.LocalMode }
