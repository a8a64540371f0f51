// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/layer-3/tokenstore/core"
)

// Backend names a storage implementation
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config is the full service configuration
type Config struct {
	Addr string `env:"TOKENSTORE_ADDR" envDefault:":9000"`

	Backend     Backend `env:"TOKENSTORE_BACKEND" envDefault:"redis"`
	RedisURL    string  `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix string  `env:"TOKENSTORE_REDIS_PREFIX" envDefault:"tokenstore:"`
	SQLitePath  string  `env:"TOKENSTORE_SQLITE_PATH" envDefault:"tokenstore.db"`
	PostgresDSN string  `env:"TOKENSTORE_POSTGRES_DSN"`

	// MaxPageSize bounds one page of List results
	MaxPageSize int            `env:"MULTI_MAX" envDefault:"100"`
	PullScope   core.PullScope `env:"TOKENSTORE_PULL_SCOPE" envDefault:"owner"`

	ChallengeTTL time.Duration `env:"TOKENSTORE_CHALLENGE_TTL" envDefault:"5m"`
	AccessTTL    time.Duration `env:"TOKENSTORE_ACCESS_TTL" envDefault:"5m"`
	RefreshTTL   time.Duration `env:"TOKENSTORE_REFRESH_TTL" envDefault:"120h"`

	EventsTopic string `env:"TOKENSTORE_EVENTS_TOPIC" envDefault:"tokenstore.tokens"`
	Debug       bool   `env:"TOKENSTORE_DEBUG" envDefault:"false"`
}

// Load parses the environment into a Config and validates it
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings the service cannot run with
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("TOKENSTORE_POSTGRES_DSN is required for the postgres backend")
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("MULTI_MAX must be positive, got %d", c.MaxPageSize)
	}
	if !c.PullScope.Valid() {
		return fmt.Errorf("unknown pull scope %q", c.PullScope)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ChallengeTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}
