// Package cache keeps rendered search responses close to the API.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "kaos:history:"

// HistoryCache stores rendered responses by history id.
type HistoryCache interface {
	Get(ctx context.Context, id int64) (string, bool)
	Set(ctx context.Context, id int64, response string)
}

// Stats are the cache counters since start.
type Stats struct {
	Hits   int64
	Misses int64
	Sets   int64
	Errors int64
}

// RedisCache is a HistoryCache backed by redis. Redis failures are logged
// and reported as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	hits, misses, sets, errors atomic.Int64
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Ping checks that redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.WithContext(ctx).Ping().Err()
}

func key(id int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, id)
}

func (c *RedisCache) Get(ctx context.Context, id int64) (string, bool) {
	val, err := c.client.WithContext(ctx).Get(key(id)).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return "", false
	}
	if err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		c.logger.WithFields(logrus.Fields{"history_id": id, "error": err.Error()}).Warn("redis get failed")
		return "", false
	}
	c.hits.Add(1)
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, id int64, response string) {
	if err := c.client.WithContext(ctx).Set(key(id), response, c.ttl).Err(); err != nil {
		c.errors.Add(1)
		c.logger.WithFields(logrus.Fields{"history_id": id, "error": err.Error()}).Warn("redis set failed")
		return
	}
	c.sets.Add(1)
}

func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Errors: c.errors.Load(),
	}
}

// Nop never stores anything. It is used when redis is not configured.
type Nop struct{}

func (Nop) Get(context.Context, int64) (string, bool) { return "", false }
func (Nop) Set(context.Context, int64, string)        {}
