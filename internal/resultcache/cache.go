// Package resultcache keeps finished enrichment results in Redis so repeated
// identical queries against an unchanged database skip the computation.
package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
)

const keyPrefix = "saddlesum:result:"

type Cache interface {
	Get(ctx context.Context, key string) (*enrich.Result, bool, error)
	Set(ctx context.Context, key string, res *enrich.Result) error
	// InvalidateDatabase drops every result computed against database.
	InvalidateDatabase(ctx context.Context, database string) (int64, error)
	Close() error
}

// Key fingerprints a query. request must marshal deterministically; structs
// do, maps are sorted by encoding/json.
func Key(database string, request any) (string, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	return keyPrefix + database + ":" + strconv.FormatUint(xxhash.Sum64(b), 16), nil
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects and verifies the connection with a PING.
func NewRedisCache(ctx context.Context, o Options) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: o.TTL}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*enrich.Result, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	res := &enrich.Result{}
	if err := json.Unmarshal(b, res); err != nil {
		return nil, false, fmt.Errorf("decode cached result %s: %w", key, err)
	}
	return res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res *enrich.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

func (c *RedisCache) InvalidateDatabase(ctx context.Context, database string) (int64, error) {
	pattern := keyPrefix + database + ":*"
	var deleted int64
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("deleting key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	return deleted, nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
