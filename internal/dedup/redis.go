package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/luma-gate/pkg/config"
)

const redisKeyPrefix = "gate:scan:"

// RedisStore shares one dedup horizon across gate lanes.
type RedisStore struct {
	client   *redis.Client
	cooldown time.Duration
}

func NewRedisStore(client *redis.Client, cooldown time.Duration) *RedisStore {
	return &RedisStore{client: client, cooldown: cooldown}
}

// FirstSeen uses SET NX EX: the key only lands when absent and expiry
// enforces the cooldown. A suppressed key keeps its remaining TTL.
func (s *RedisStore) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+key, time.Now().Unix(), s.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return ok, nil
}

// Connect opens the shared dedup backend and verifies it responds.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
