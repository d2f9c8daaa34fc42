package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps redis.Client. Reads fail safe by treating redis errors as misses;
// writes report them. A nil *Client (no REDIS_ADDR configured) behaves as an always-empty store.
type Client struct {
	client *redis.Client
}

// New creates a new Redis client, or returns nil when addr is empty.
func New(addr, password string, db int) *Client {
	if addr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	return &Client{client: redis.NewClient(opts)}
}

// Enabled reports whether a Redis server is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Ping checks connectivity; a disabled client is always healthy.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Exists reports whether key is present. Missing keys and redis failures both read as false.
func (c *Client) Exists(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		// fail safe: behave like a miss
		return false
	}
	return n > 0
}

// Set stores value with TTL. A disabled client stores nothing and returns nil.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
