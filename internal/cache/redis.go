package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/metrics"
)

// CountTTL is the longest a cached counter lives.
const CountTTL = time.Hour

type RedisCache struct {
	Client *redis.Client

	fills singleflight.Group
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

// KeyForReceivedCount is the counter of pending interests a user received.
func (c *RedisCache) KeyForReceivedCount(userID string) string {
	return fmt.Sprintf("likes:count:%s", userID)
}

// InvalidateReceivedCount drops the cached counters of the given users and
// bumps their generation so a fill already in flight is not stored.
func (c *RedisCache) InvalidateReceivedCount(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range userIDs {
			key := c.KeyForReceivedCount(id)
			p.Del(ctx, key)
			p.Incr(ctx, generationKey(key))
			p.Expire(ctx, generationKey(key), 2*CountTTL)
		}
		return nil
	})
	return err
}

func generationKey(key string) string {
	return key + ":gen"
}

// CountLoader computes a counter. maxAge caps how long the value may be
// cached, e.g. until the next pass expires; zero means no cap.
type CountLoader func(ctx context.Context) (n int64, maxAge time.Duration, err error)

// CountOrLoad returns the cached counter at key. On a miss it calls load
// once, however many callers are waiting, and caches the result for at
// most CountTTL. Hits never extend the TTL. Redis failures fall through
// to load.
func (c *RedisCache) CountOrLoad(ctx context.Context, key string, load CountLoader) (int64, error) {
	val, err := c.Get(ctx, key)
	if err == nil {
		if n, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return n, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("error").Inc()
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.fills.Do(key, func() (interface{}, error) {
		return c.fill(ctx, key, load)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// fill loads the counter while watching its generation. An invalidation
// between the load and the write aborts the write.
func (c *RedisCache) fill(ctx context.Context, key string, load CountLoader) (int64, error) {
	var (
		n       int64
		called  bool
		loadErr error
	)
	werr := c.Client.Watch(ctx, func(tx *redis.Tx) error {
		called = true
		var maxAge time.Duration
		n, maxAge, loadErr = load(ctx)
		if loadErr != nil {
			return loadErr
		}
		ttl := CountTTL
		if maxAge > 0 && maxAge < ttl {
			ttl = maxAge
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, n, ttl)
			return nil
		})
		return err
	}, generationKey(key))

	switch {
	case loadErr != nil:
		return 0, loadErr
	case !called:
		// Redis unavailable: serve straight from the loader
		metrics.CacheLookups.WithLabelValues("error").Inc()
		n, _, err := load(ctx)
		return n, err
	case errors.Is(werr, redis.TxFailedErr):
		metrics.CacheLookups.WithLabelValues("stale_fill").Inc()
	case werr != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
	}
	return n, nil
}
