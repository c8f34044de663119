// Package dedup suppresses redelivered chat events so a message is forwarded at most once.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bridge:event:"

// Deduper reports whether an event id has already been handled. Seen only
// checks; Mark records the id once handling has completed, so an event that was
// interrupted is still processed on redelivery.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
	Close() error
}

// Noop never reports duplicates. Used when no redis url is configured.
type Noop struct{}

func (Noop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Noop) Mark(context.Context, string) error         { return nil }
func (Noop) Close() error                               { return nil }

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis parses url, pings the server and returns a deduper that remembers
// event ids for ttl.
func NewRedis(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisDeduper, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, ttl, logger), nil
}

func NewRedisWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisDeduper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisDeduper{client: client, ttl: ttl, logger: logger.With("component", "dedup")}
}

// Seen reports whether eventID was marked. Redis errors are returned with
// seen=false so callers can fail open.
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", eventID, err)
	}
	if n > 0 {
		d.logger.Debug("duplicate event", "event_id", eventID)
	}
	return n > 0, nil
}

// Mark remembers eventID for the configured ttl.
func (d *RedisDeduper) Mark(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := d.client.Set(ctx, keyPrefix+eventID, 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", eventID, err)
	}
	return nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
