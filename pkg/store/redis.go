package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces cursor keys in a shared Redis database
const DefaultKeyPrefix = "synccursor:"

// redisClient is the subset of *redis.Client the store uses
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisStore keeps each cursor in a Redis string key
type RedisStore struct {
	client    redisClient
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(addr, password string, db int, keyPrefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("missing redis address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisStore(client, keyPrefix), nil
}

func newRedisStore(client redisClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (r *RedisStore) Backend() string { return "redis" }

func (r *RedisStore) key(name string) string {
	return r.keyPrefix + "cursor:" + name
}

// Load reads the token saved under name
func (r *RedisStore) Load(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	token, err := r.client.Get(ctx, r.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", storeError(r.Backend(), "load", name, err)
	}
	return token, nil
}

// Save replaces the token saved under name. Cursor keys never expire.
func (r *RedisStore) Save(ctx context.Context, name, token string) error {
	if token == "" {
		return r.Delete(ctx, name)
	}
	if err := validateName(name); err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key(name), token, 0).Err(); err != nil {
		return storeError(r.Backend(), "save", name, err)
	}
	return nil
}

// Delete removes the token saved under name
func (r *RedisStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.key(name)).Err(); err != nil {
		return storeError(r.Backend(), "delete", name, err)
	}
	return nil
}

// Close closes the Redis connection pool
func (r *RedisStore) Close() error {
	return r.client.Close()
}
