package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the CredentialStore interface.
// It keeps the refresh credential across CLI invocations and machines.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store scoped under namespace
func NewRedisStore(client *redis.Client, namespace string) ports.CredentialStore {
	return &RedisStore{
		client: client,
		prefix: "mercuria:" + namespace + ":",
	}
}

// Set writes the key with a Redis-side expiry
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Get reads the key; Redis drops it once the TTL passes
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrCredentialNotFound
		}
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return value, nil
}

// Delete removes the key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
