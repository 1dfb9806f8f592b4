package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a redis client as the message dedup store.
type Redis struct {
	client   *redis.Client
	dedupTTL time.Duration
}

// Config holds redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
	DedupTTL time.Duration
}

// New connects to redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Redis, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, dedupTTL: ttl}, nil
}

// Close releases the connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// SeenMessage records a message id and reports whether it was already seen.
// Keys expire after the dedup TTL so the set stays bounded.
func (r *Redis) SeenMessage(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("seen:msg:%s", id)
	ok, err := r.client.SetNX(ctx, key, 1, r.dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}
