// Package cache holds the optional Redis connection and the idempotency
// store built on it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled is returned by NewRedisClient when no URL is configured.
var ErrRedisDisabled = errors.New("redis disabled: REDIS_URL not set")

const connectTimeout = 2 * time.Second

// RedisClient owns a go-redis pool. A nil *RedisClient means the service
// runs without idempotency replay.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient dials url and confirms the server answers PING.
// An empty url yields ErrRedisDisabled so callers can tell "off" from "down".
func NewRedisClient(ctx context.Context, url string) (*RedisClient, error) {
	if url == "" {
		return nil, ErrRedisDisabled
	}
	opts, err := clientOptions(url)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &RedisClient{client: rdb}, nil
}

// clientOptions parses url and fills in pool settings sized for a single
// small API process. Values given in the URL query win.
func clientOptions(url string) (*redis.Options, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = 2
	}
	// Idempotency lookups sit on the request path; fail fast rather than
	// hold a POST open.
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	opts.PoolTimeout = 2 * time.Second
	opts.MaxRetries = 1
	return opts, nil
}

// Ping satisfies httpx.HealthChecker for the readiness probe.
func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the pool. Safe on a zero RedisClient.
func (r *RedisClient) Close() error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Client exposes the go-redis client.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}
