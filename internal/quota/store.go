// internal/quota/store.go
package quota

import (
	"context"
	"fmt"
	"time"
)

// Driver identifiers for the counter store.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Store keeps per-user, per-day analysis counters. day is YYYY-MM-DD in UTC.
// Incr and Decr must be atomic and return the new value.
type Store interface {
	Count(ctx context.Context, userID, day string) (int, error)
	Incr(ctx context.Context, userID, day string) (int, error)
	Decr(ctx context.Context, userID, day string) (int, error)
	Close() error
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Config struct {
	Driver     string        `yaml:"driver"`
	DailyLimit int           `yaml:"daily_limit"`
	TTL        time.Duration `yaml:"ttl"`
	Redis      *RedisConfig  `yaml:"redis"`
}

// New creates a counter store based on cfg.Driver; empty means memory.
func New(cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported quota store driver: %s", driver)
	}
}
