package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopchat/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis for the two cache concerns this service has: the
// shop-settings cache and idempotency markers. A nil *Client is safe to call;
// every method reports ErrNotConfigured, so callers treat the cache as
// optional and degrade to the database.
type Client struct {
	inner *redis.Client
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

// ErrNotConfigured is returned by every method on a nil or unconnected client.
var ErrNotConfigured = errors.New("redis not configured")

// NewRedisClient connects and pings; a failed ping is returned rather than
// deferred so main can decide to run cacheless.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Client{inner: client}, nil
}

// Set stores a key with TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.inner == nil {
		return ErrNotConfigured
	}
	return c.inner.Set(ctx, key, value, ttl).Err()
}

// SetNX stores a key only when absent; returns whether the key was set.
// Used for idempotency markers on replayed requests.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if c == nil || c.inner == nil {
		return false, ErrNotConfigured
	}
	return c.inner.SetNX(ctx, key, value, ttl).Result()
}

// Get fetches the key as string; a missing key is ErrCacheMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", ErrNotConfigured
	}
	return c.inner.Get(ctx, key).Result()
}

// Del removes the given keys. Settings writes call this to invalidate the
// cached copy.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.inner == nil {
		return ErrNotConfigured
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// Close releases the connection pool; safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
