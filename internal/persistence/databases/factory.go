package databases

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"deepresearch/internal/config"
	"deepresearch/internal/persistence"
)

// NewChatStore constructs the configured ChatStore backend. A blank DSN
// selects the in-memory store, used for local development and tests; a
// non-blank DSN connects to Postgres.
func NewChatStore(ctx context.Context, cfg config.DatabaseConfig) (persistence.ChatStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		store := newMemoryChatStore()
		return store, store.Init(ctx)
	}
	pool, err := newPgPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	store := NewPostgresChatStore(pool)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = 8
	poolCfg.MinConns = 0
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
