package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClient is satisfied by *redis.Client and the cluster/ring clients
type RedisClient = redis.UniversalClient

// Redis stores values as plain keys in a Redis database.
// Values never expire; the local state lives until explicitly cleared.
type Redis struct {
	client RedisClient
	prefix string
}

// NewRedis creates a Redis-backed KV
func NewRedis(client RedisClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "shelfdesk:"
	}
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return data, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by whoever created it
func (r *Redis) Close() error {
	return nil
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}
