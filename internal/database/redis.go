package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/wayfarer/internal/config"
)

// storeTimeout bounds a single shared-store round-trip. Session checks sit on
// the hot request path, so a stalled Redis must surface as an error quickly
// instead of queueing requests behind it.
const storeTimeout = 500 * time.Millisecond

// NewRedis creates the shared state store client from the given config. It
// parses the URL, applies per-command timeouts, and waits until the server
// answers a PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = storeTimeout
	opts.WriteTimeout = storeTimeout

	client := redis.NewClient(opts)

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := pingWithRetry(ctx, "redis", startupRetry, ping); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
