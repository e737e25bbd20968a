package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Store selects "sql" or "memory".
	Store    string `env:"STORE_BACKEND" envDefault:"sql"`
	DBDriver string `env:"DB_DRIVER" envDefault:"libsql"`
	DBPath   string `env:"DB_PATH" envDefault:"data/detective.db"`

	// RedisURL moves sessions to Redis when set.
	RedisURL   string        `env:"REDIS_URL"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	AttemptLimit int           `env:"ATTEMPT_LIMIT" envDefault:"100"`

	// SweepInterval enables the background finisher for expired rooms.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"0s"`

	SeedDemo bool `env:"SEED_DEMO" envDefault:"true"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch cfg.Store {
	case "sql", "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store)
	}
	return &cfg, nil
}
