// Package config loads engine configuration from PLAN_ENGINE_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port        int    `env:"PLAN_ENGINE_PORT"         envDefault:"8080"`
	StoreDriver string `env:"PLAN_ENGINE_STORE"        envDefault:"sqlite"`
	SQLitePath  string `env:"PLAN_ENGINE_SQLITE_PATH"  envDefault:"./plans.db"`
	PostgresDSN string `env:"PLAN_ENGINE_POSTGRES_DSN"`

	// Empty RedisAddr selects the in-process reaper lock.
	RedisAddr string        `env:"PLAN_ENGINE_REDIS_ADDR"`
	LockTTL   time.Duration `env:"PLAN_ENGINE_LOCK_TTL" envDefault:"30s"`

	SchedulerEnabled bool          `env:"PLAN_ENGINE_SCHEDULER_ENABLED" envDefault:"true"`
	ReapInterval     time.Duration `env:"PLAN_ENGINE_REAP_INTERVAL"     envDefault:"1h"`

	// DefaultDurationDays fills requests that omit duration_days at the HTTP edge.
	DefaultDurationDays int `env:"PLAN_ENGINE_DEFAULT_DURATION_DAYS" envDefault:"30"`

	// Empty Assigners allows every non-blank assigner id.
	Assigners      []string `env:"PLAN_ENGINE_ASSIGNERS"       envSeparator:","`
	AllowedOrigins []string `env:"PLAN_ENGINE_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LogMode string `env:"PLAN_ENGINE_LOG_MODE" envDefault:"dev"`

	// Scenarios mounts the demo seeding endpoints. Development only.
	Scenarios bool `env:"PLAN_ENGINE_SCENARIOS" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: PLAN_ENGINE_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.DefaultDurationDays <= 0 {
		return fmt.Errorf("config: default duration must be positive, got %d", c.DefaultDurationDays)
	}
	if c.SchedulerEnabled && c.ReapInterval <= 0 {
		return fmt.Errorf("config: reap interval must be positive when the scheduler is enabled")
	}
	return nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
