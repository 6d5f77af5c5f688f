// Package prefs stores per-participant preferences, such as the last-chosen
// team, keyed by a caller-supplied scope (typically a client identity).
package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const prefKeyPrefix = "prefs:"

// Config holds configuration for the Redis preference store.
type Config struct {
	// Redis client
	RedisClient *redis.Client
	// Scope namespaces keys per client identity; optional.
	Scope string
}

// redisStore implements the preference contract using Redis.
type redisStore struct {
	client *redis.Client
	scope  string
}

// NewRedis creates a new Redis-backed preference store.
func NewRedis(cfg *Config) (*redisStore, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	// Test connection
	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisStore{
		client: cfg.RedisClient,
		scope:  cfg.Scope,
	}, nil
}

// Get returns the stored value for key, or "" when no value is set.
func (r *redisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get preference: %w", err)
	}
	return val, nil
}

// Set stores value under key with no expiration.
func (r *redisStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

func (r *redisStore) key(key string) string {
	if r.scope == "" {
		return prefKeyPrefix + key
	}
	return fmt.Sprintf("%s%s:%s", prefKeyPrefix, r.scope, key)
}
