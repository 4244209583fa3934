// Package cache wraps Redis behind a namespaced, best-effort client.
// The cache is a lossy accelerator in front of Postgres, never a source of
// truth, so every backend error is absorbed here and surfaces to callers as
// the zero value. Callers must treat empty results as "unknown", not
// "definitively empty", and fall back to the durable store when it matters.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arcade_cache_errors_total",
	Help: "Total number of Redis errors swallowed by the cache layer",
}, []string{"op"})

// ZEntry is a sorted-set member with its score.
type ZEntry struct {
	Member string
	Score  float64
}

// Client is a shared, connection-pooled handle. It is cheap to copy and
// safe for concurrent use.
type Client struct {
	rdb    redis.Cmdable
	prefix string
	logger *zap.SugaredLogger
}

func NewClient(rdb redis.Cmdable, prefix string, logger *zap.Logger) *Client {
	return &Client{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.Sugar(),
	}
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

// fail records a swallowed backend error. redis.Nil is a legitimate miss,
// not a failure.
func (c *Client) fail(op, key string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	cacheErrors.WithLabelValues(op).Inc()
	c.logger.Debugw("Cache operation failed", "op", op, "key", key, "error", err)
}

// Get returns the value for key, or ok=false on miss or any backend error.
func (c *Client) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if err != nil {
		c.fail("get", key, err)
		return "", false
	}
	return val, true
}

// GetJSON unmarshals the cached value into dest. Malformed JSON counts as
// a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

// Set stores value under key. ttl <= 0 means no expiry.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		c.fail("set", key, err)
	}
}

// SetJSON serializes value and stores it. Does nothing if serialization fails.
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Set(ctx, key, string(data), ttl)
}

// Del removes key, best effort.
func (c *Client) Del(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		c.fail("del", key, err)
	}
}

// ZAdd inserts or updates member's score in the sorted set at key.
func (c *Client) ZAdd(ctx context.Context, key, member string, score float64) {
	err := c.rdb.ZAdd(ctx, c.key(key), redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		c.fail("zadd", key, err)
	}
}

// ZRevRangeWithScores returns members ordered by descending score.
// stop = -1 means "to the end". On any backend error it returns an empty
// slice, indistinguishable from a truly empty set.
func (c *Client) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) []ZEntry {
	vals, err := c.rdb.ZRevRangeWithScores(ctx, c.key(key), start, stop).Result()
	if err != nil {
		c.fail("zrevrange", key, err)
		return nil
	}
	entries := make([]ZEntry, 0, len(vals))
	for _, z := range vals {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, ZEntry{Member: member, Score: z.Score})
	}
	return entries
}

// ZRevRank returns the 0-indexed descending rank of member, or ok=false if
// the member is absent or the backend failed.
func (c *Client) ZRevRank(ctx context.Context, key, member string) (int64, bool) {
	rank, err := c.rdb.ZRevRank(ctx, c.key(key), member).Result()
	if err != nil {
		c.fail("zrevrank", key, err)
		return 0, false
	}
	return rank, true
}

// ZScore returns member's score, or ok=false if absent or on error.
func (c *Client) ZScore(ctx context.Context, key, member string) (float64, bool) {
	score, err := c.rdb.ZScore(ctx, c.key(key), member).Result()
	if err != nil {
		c.fail("zscore", key, err)
		return 0, false
	}
	return score, true
}

// ZCard returns the cardinality of the sorted set, 0 on error.
func (c *Client) ZCard(ctx context.Context, key string) int64 {
	n, err := c.rdb.ZCard(ctx, c.key(key)).Result()
	if err != nil {
		c.fail("zcard", key, err)
		return 0
	}
	return n
}

// Expire refreshes the TTL on key, best effort.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) {
	if err := c.rdb.Expire(ctx, c.key(key), ttl).Err(); err != nil {
		c.fail("expire", key, err)
	}
}

// Incr atomically increments key and returns the new value. Returns 0 on
// backend error, which callers cannot distinguish from a true zero.
func (c *Client) Incr(ctx context.Context, key string) int64 {
	val, err := c.rdb.Incr(ctx, c.key(key)).Result()
	if err != nil {
		c.fail("incr", key, err)
		return 0
	}
	return val
}

// HealthCheck pings the backend.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}
