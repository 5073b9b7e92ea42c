package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/podwatch/anomaly-engine/internal/config"
)

// RedisProvider implements Provider backed by a Redis/Valkey-compatible
// server.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider creates a Provider from the cache config block. It
// pings the target to fail fast when connectivity or credentials are
// wrong.
func NewRedisProvider(cfg config.CacheConfig) (*RedisProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("cache addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping cache at %s: %w", cfg.Addr, err)
	}

	return &RedisProvider{client: client}, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return payload, nil
}

// Set stores bytes with the provided TTL.
func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
