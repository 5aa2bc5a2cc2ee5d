// Package cache implements the multi-layer cache (C3): a bounded
// in-process LRU (L1) fronting an external Redis key-value store (L2),
// read-through with negative caching, composed so that L2 is only
// consulted while its circuit breaker reports CLOSED/HALF_OPEN.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by L2 when a key is absent.
var ErrNotFound = errors.New("cache: key not found")

// L2 is the external key-value store contract. RedisStore is the
// production implementation; tests substitute a miniredis-backed one.
type L2 interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	Close() error
}

// RedisConfig configures the L2 Redis connection.
type RedisConfig struct {
	Address  string
	Password string
	Database int
}

// RedisStore is the production L2 implementation, storing JSON-serialized
// values with Redis-native TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials Redis and verifies connectivity with PING.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStore) Flush(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
