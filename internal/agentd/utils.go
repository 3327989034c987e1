package agentd

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"deepresearch/internal/auth"
)

var errUnauthenticated = errors.New("unauthenticated")

func previewSnippet(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) <= 80 {
		return collapsed
	}
	return string(runes[:77]) + "..."
}

func setChatCORSHeaders(w http.ResponseWriter, r *http.Request, methods string) {
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	if methods != "" {
		w.Header().Set("Access-Control-Allow-Methods", methods)
	}
}

// requireUserID resolves the acting user id for this request. A nil return
// means an unrestricted/internal caller (auth disabled); a non-nil userID
// scopes chat store access to that user.
func (a *app) requireUserID(r *http.Request) (*int64, error) {
	if !a.cfg.Auth.Enabled {
		return nil, nil
	}
	user, ok := auth.CurrentUser(r.Context())
	if !ok || user == nil {
		return nil, errUnauthenticated
	}
	id := user.ID
	return &id, nil
}

func databasesTestPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
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
