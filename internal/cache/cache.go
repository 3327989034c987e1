// Package cache implements the Result Cache: a content-addressed memoizer
// for expensive deterministic functions (Fetcher, Summarizer), backed by
// Redis with fail-open semantics so a Redis outage degrades to "always
// compute" rather than failing requests.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"deepresearch/internal/config"
)

// Cache memoizes byte-slice results under a stable key derived from a
// function name and its canonicalized arguments.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New constructs a Cache against the given Redis URL. A blank URL disables
// the cache: GetOrCompute always calls compute.
func New(cfg config.RedisConfig, ttl time.Duration) (*Cache, error) {
	if cfg.URL == "" {
		return &Cache{}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Key derives the stable cache key for a function name and its arguments.
// args is marshaled through encoding/json (maps are key-sorted by the
// encoder, giving a canonical encoding) and hashed with sha256.
func Key(fnName string, args any) (string, error) {
	canon, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("cache: canonicalize args: %w", err)
	}
	sum := sha256.Sum256(append([]byte(fnName+":"), canon...))
	return "cache:" + hex.EncodeToString(sum[:]), nil
}

// GetOrCompute returns the cached bytes for (fnName, args) if present and
// unexpired, else invokes compute, stores its result with the cache's TTL,
// and returns it. Read and write errors against the backing store are
// logged and never surfaced: a cache outage degrades to "always compute".
func (c *Cache) GetOrCompute(ctx context.Context, fnName string, args any, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil || c.client == nil {
		return compute(ctx)
	}
	key, err := Key(fnName, args)
	if err != nil {
		return compute(ctx)
	}

	if val, err := c.client.Get(ctx, key).Bytes(); err == nil {
		return val, nil
	} else if err != redis.Nil {
		log.Debug().Err(err).Str("key", key).Msg("result_cache_get_error")
	}

	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, result, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("result_cache_set_error")
	}
	return result, nil
}

// Close releases the underlying Redis connection, if any.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
