// Package redis wraps go-redis/v9 for the query cache: string get/set with
// TTL, glob invalidation, and a startup connectivity check.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/resonantlabs/crawlspace/pkg/config"
)

const (
	connectTimeout = 5 * time.Second
	scanPageSize   = 100
)

// Client is a pooled connection to one Redis instance.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and verifies the server answers a PING before returning.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	c := &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis at %s: %w", cfg.Addr, err)
	}
	return c, nil
}

// Get returns the value stored under key. Key absence is reported as an
// error satisfying IsNilError.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores value under key for ttl.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern deletes every key matching the glob pattern and returns how
// many were removed. Keys are gathered with SCAN and deleted in pages, so the
// server is never asked to materialize the whole keyspace at once.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	page := make([]string, 0, scanPageSize)

	flush := func() error {
		if len(page) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, page...).Result()
		deleted += n
		page = page[:0]
		return err
	}

	iter := c.rdb.Scan(ctx, 0, pattern, scanPageSize).Iterator()
	for iter.Next(ctx) {
		page = append(page, iter.Val())
		if len(page) == scanPageSize {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("deleting %q keys: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning %q: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("deleting %q keys: %w", pattern, err)
	}
	return deleted, nil
}

// IsNilError reports whether err means the key did not exist.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
