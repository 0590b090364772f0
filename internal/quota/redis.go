// internal/quota/redis.go
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 48 * time.Hour

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed counter store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "mealvision:quota:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(userID, day string) string {
	return s.prefix + userID + ":" + day
}

func (s *redisStore) Count(ctx context.Context, userID, day string) (int, error) {
	n, err := s.client.Get(ctx, s.key(userID, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

func (s *redisStore) Incr(ctx context.Context, userID, day string) (int, error) {
	key := s.key(userID, day)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return int(incr.Val()), nil
}

// decrScript never takes a counter below zero, so releasing after the key
// expired cannot leave a negative count behind.
var decrScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n < 0 then
  redis.call("SET", KEYS[1], 0, "KEEPTTL")
  n = 0
end
return n
`)

func (s *redisStore) Decr(ctx context.Context, userID, day string) (int, error) {
	n, err := decrScript.Run(ctx, s.client, []string{s.key(userID, day)}).Int()
	if err != nil {
		return 0, fmt.Errorf("redis decr: %w", err)
	}
	return n, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
