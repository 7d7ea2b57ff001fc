// Package cache caches search responses in Redis keyed by normalized query
// and limit, collapsing concurrent identical queries through singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/resonantlabs/crawlspace/internal/searcher"
	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
	pkgredis "github.com/resonantlabs/crawlspace/pkg/redis"
)

// keyPrefix carries a format version so a Response schema change cannot serve
// stale shapes; bump it when the cached JSON layout changes.
const keyPrefix = "search:v1:"

type QueryCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		cfg:     cfg,
		logger:  logger.WithComponent("query-cache"),
		metrics: m,
	}
}

// GetOrCompute returns a cached response or computes, caches, and returns a
// fresh one. Concurrent callers with the same key share one computation. The
// second return value reports whether the response came from cache.
func (c *QueryCache) GetOrCompute(ctx context.Context, query string, limit int, compute func() (*searcher.Response, error)) (*searcher.Response, bool, error) {
	key := cacheKey(query, limit)
	if resp, ok := c.lookup(ctx, key); ok {
		c.hits.Add(1)
		c.metrics.CacheHitsTotal.Inc()
		c.logger.Debug("cache hit", "key", key)
		return resp, true, nil
	}
	c.misses.Add(1)
	c.metrics.CacheMissesTotal.Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fill(ctx, key, compute)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*searcher.Response), false, nil
}

// fill rechecks Redis and falls back to computing. Only one fill per key runs
// at a time; callers that lost the singleflight race reuse its result instead
// of hitting the engine again.
func (c *QueryCache) fill(ctx context.Context, key string, compute func() (*searcher.Response, error)) (*searcher.Response, error) {
	if resp, ok := c.lookup(ctx, key); ok {
		return resp, nil
	}
	resp, err := compute()
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, resp)
	return resp, nil
}

// lookup fetches and decodes one cached response. It reports false on any
// failure; a broken cache entry must never fail a search.
func (c *QueryCache) lookup(ctx context.Context, key string) (*searcher.Response, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var resp searcher.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	return &resp, true
}

// store writes a response through to Redis with the configured TTL. Failures
// are logged and swallowed; the caller already has the response in hand.
func (c *QueryCache) store(ctx context.Context, key string, resp *searcher.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL.Std()); err != nil {
		c.logger.Error("cache write failed", "key", key, "error", err)
	}
}

// Invalidate removes every cached search response.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	c.logger.Info("cache flushed", "keys_deleted", deleted)
	return nil
}

// Stats returns the process-local hit and miss counters.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cacheKey derives a Redis key from the lowercased, word-sorted query.
// Scoring is bag-of-words, so queries differing only in word order or case
// share an entry. The limit stays outside the hash so distinct page sizes
// stay distinct keys.
func cacheKey(query string, limit int) string {
	words := strings.Fields(strings.ToLower(query))
	sort.Strings(words)
	sum := sha256.Sum256([]byte(strings.Join(words, " ")))
	return fmt.Sprintf("%s%s:%d", keyPrefix, hex.EncodeToString(sum[:16]), limit)
}
