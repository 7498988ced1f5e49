package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/statuspulse/statuspulse/pkg/store"
)

// RedisStore implements the store.Store interface using Redis. TTL handling
// is delegated to Redis key expiration.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	config    *store.Config
}

// New creates a new Redis store instance
func New(config *store.Config) (*RedisStore, error) {
	if config == nil {
		config = store.DefaultConfig()
	}

	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opts := &redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.Database,
	}

	if config.Timeout > 0 {
		opts.DialTimeout = config.Timeout
		opts.ReadTimeout = config.Timeout
		opts.WriteTimeout = config.Timeout
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: config.KeyPrefix,
		config:    config,
	}, nil
}

// Get retrieves a value by key
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := rs.client.Get(ctx, rs.getKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

// Set stores a value by key. A zero ttl means the entry never expires.
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := rs.client.Set(ctx, rs.getKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete deletes a value by key
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.getKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

// Health returns the health status of the store
func (rs *RedisStore) Health() store.HealthStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := store.HealthStatus{Timestamp: time.Now()}
	if err := rs.client.Ping(ctx).Err(); err != nil {
		status.Status = "unhealthy"
		status.Message = err.Error()
	} else {
		status.Status = "healthy"
	}
	return status
}

// getKey returns the full key with prefix
func (rs *RedisStore) getKey(key string) string {
	if rs.keyPrefix == "" {
		return key
	}
	return rs.keyPrefix + ":" + key
}
