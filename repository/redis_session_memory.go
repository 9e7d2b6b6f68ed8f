package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "insightquest:session:"

// RedisSessionMemory remembers the last connected address of one client in Redis
type RedisSessionMemory struct {
	client *redis.Client
	key    string
}

// NewRedisSessionMemory creates a session memory scoped to clientID
func NewRedisSessionMemory(client *redis.Client, clientID string) *RedisSessionMemory {
	return &RedisSessionMemory{client: client, key: sessionKeyPrefix + clientID}
}

// Remember stores address as the client's last session
func (r *RedisSessionMemory) Remember(ctx context.Context, address string) error {
	if err := r.client.Set(ctx, r.key, address, 0).Err(); err != nil {
		return fmt.Errorf("failed to remember session %s: %w", r.key, err)
	}
	return nil
}

// Recall returns the remembered address or an empty string
func (r *RedisSessionMemory) Recall(ctx context.Context) (string, error) {
	address, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to recall session %s: %w", r.key, err)
	}
	return address, nil
}

// Forget removes the remembered address
func (r *RedisSessionMemory) Forget(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to forget session %s: %w", r.key, err)
	}
	return nil
}
