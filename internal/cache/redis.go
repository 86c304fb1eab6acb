package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eugener/aside/internal/config"
)

// Redis is a store backed by a Redis server. Expiry is handled by Redis via
// SET ... EX, so Get never sees an expired entry.
type Redis struct {
	rdb         redis.UniversalClient
	closeClient bool
}

// NewRedis creates a Redis-backed store from cfg. The client dials lazily,
// so an unreachable server surfaces on the first operation or Ping, not here.
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		var err error
		opts, err = redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	return &Redis{rdb: redis.NewClient(opts), closeClient: true}, nil
}

// NewRedisFromClient wraps an existing client. The caller keeps ownership of
// the client; Close does not close it.
func NewRedisFromClient(client redis.UniversalClient) *Redis {
	return &Redis{rdb: client}
}

// Get returns the stored value; redis.Nil is a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("redis get", err)
	}
	return b, true, nil
}

// Set stores val with an expiry of ttl.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Delete removes key; DEL's reply count tells whether it existed.
func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, unavailable("redis del", err)
	}
	return n > 0, nil
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

// Close releases the client when this store owns it.
// Safe to call multiple times.
func (r *Redis) Close() error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
	}
	return nil
}
