// Package ratelimit implements a fixed-window request limiter backed by
// Redis, so every agentd replica shares the same counters.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"deepresearch/internal/config"
)

// Config describes one fixed-window limit.
type Config struct {
	KeyPrefix   string
	MaxRequests int
	WindowMS    int64
	MaxRetries  int
}

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
	TotalHits int
}

// Limiter checks and records hits against fixed time windows. A Limiter
// constructed with a blank Redis URL always allows requests: rate limiting
// degrades open rather than blocking traffic when Redis is unavailable.
type Limiter struct {
	client redis.UniversalClient
}

// New constructs a Limiter against the given Redis URL.
func New(cfg config.RedisConfig) (*Limiter, error) {
	if cfg.URL == "" {
		return &Limiter{}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	return &Limiter{client: redis.NewClient(opts)}, nil
}

func windowStart(now time.Time, windowMS int64) int64 {
	ms := now.UnixMilli()
	return (ms / windowMS) * windowMS
}

func windowKey(prefix string, start int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", prefix, start)
}

// Check reads the current window's counter without incrementing it.
func (l *Limiter) Check(ctx context.Context, cfg Config) (Result, error) {
	start := windowStart(time.Now(), cfg.WindowMS)
	reset := time.UnixMilli(start + cfg.WindowMS)
	if l == nil || l.client == nil {
		return Result{Allowed: true, Remaining: cfg.MaxRequests, ResetTime: reset}, nil
	}

	key := windowKey(cfg.KeyPrefix, start)
	hits, err := l.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			hits = 0
		} else {
			return Result{Allowed: true, Remaining: cfg.MaxRequests, ResetTime: reset}, nil
		}
	}

	remaining := cfg.MaxRequests - hits
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   hits < cfg.MaxRequests,
		Remaining: remaining,
		ResetTime: reset,
		TotalHits: hits,
	}, nil
}

// Record atomically increments the current window's counter and sets its
// TTL to one window length, via a single pipelined INCR+EXPIRE.
func (l *Limiter) Record(ctx context.Context, cfg Config) (Result, error) {
	start := windowStart(time.Now(), cfg.WindowMS)
	reset := time.UnixMilli(start + cfg.WindowMS)
	if l == nil || l.client == nil {
		return Result{Allowed: true, Remaining: cfg.MaxRequests, ResetTime: reset}, nil
	}

	key := windowKey(cfg.KeyPrefix, start)
	ttl := time.Duration(cfg.WindowMS) * time.Millisecond

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{Allowed: true, Remaining: cfg.MaxRequests, ResetTime: reset}, nil
	}

	hits := int(incr.Val())
	remaining := cfg.MaxRequests - hits
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   hits <= cfg.MaxRequests,
		Remaining: remaining,
		ResetTime: reset,
		TotalHits: hits,
	}, nil
}

// Retry sleeps until the next window boundary and re-checks, up to
// cfg.MaxRetries times. Returns true on the first allowed check.
func (l *Limiter) Retry(ctx context.Context, cfg Config) (bool, error) {
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		res, err := l.Check(ctx, cfg)
		if err != nil {
			return false, err
		}
		if res.Allowed {
			return true, nil
		}
		wait := time.Until(res.ResetTime)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
	res, err := l.Check(ctx, cfg)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
