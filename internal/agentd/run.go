package agentd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"deepresearch/internal/auth"
	"deepresearch/internal/cache"
	"deepresearch/internal/config"
	"deepresearch/internal/fetch"
	"deepresearch/internal/llm"
	"deepresearch/internal/llm/providers"
	"deepresearch/internal/observability"
	"deepresearch/internal/persistence"
	"deepresearch/internal/persistence/databases"
	"deepresearch/internal/ratelimit"
	"deepresearch/internal/search"
)

const systemUserID int64 = 0

type app struct {
	cfg         config.Config
	httpClient  *http.Client
	gateway     llm.Gateway
	searcher    search.Provider
	fetcher     *fetch.Fetcher
	resultCache *cache.Cache
	rateLimiter *ratelimit.Limiter
	chatStore   persistence.ChatStore
	authStore   *auth.Store
	login       *auth.Login
}

// Run initializes agentd and starts the HTTP listener.
func Run() {
	if err := loadEnv(); err != nil {
		log.Debug().Err(err).Msg("no .env loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.OTel)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}

	mux := newRouter(a)
	root := a.wrapWithMiddleware(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Info().Str("addr", addr).Msg("agentd listening")
	if err := http.ListenAndServe(addr, root); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func loadEnv() error {
	if err := godotenv.Load(".env"); err != nil {
		return godotenv.Load("example.env")
	}
	return nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	httpClient := observability.NewHTTPClient(nil)
	llm.ConfigureLogging(cfg.LLM.LogPayloads, 0)

	gateway, err := providers.Build(cfg.LLM, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build llm gateway: %w", err)
	}

	searcher := search.New(cfg.Search.BaseURL, time.Duration(cfg.Search.Timeout)*time.Second)

	fetcher := fetch.NewFetcher(
		fetch.WithTimeout(time.Duration(cfg.Fetch.Timeout)*time.Second),
		fetch.WithPreferReadable(true),
	)

	resultCache, err := cache.New(cfg.Redis, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("init result cache: %w", err)
	}

	limiter, err := ratelimit.New(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	chatStore, err := databases.NewChatStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init chat store: %w", err)
	}

	a := &app{
		cfg:         cfg,
		httpClient:  httpClient,
		gateway:     gateway,
		searcher:    searcher,
		fetcher:     fetcher,
		resultCache: resultCache,
		rateLimiter: limiter,
		chatStore:   chatStore,
	}

	if err := a.initAuth(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) initAuth(ctx context.Context) error {
	if !a.cfg.Auth.Enabled {
		return nil
	}
	if a.cfg.Database.DSN == "" {
		return fmt.Errorf("auth enabled but database DSN is empty")
	}
	pool, err := databasesTestPool(ctx, a.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("auth db connect failed: %w", err)
	}
	a.authStore = auth.NewStore(pool, 24*7)
	if err := a.authStore.InitSchema(ctx); err != nil {
		return fmt.Errorf("auth schema init failed: %w", err)
	}

	a.login = &auth.Login{
		Store:          a.authStore,
		SharedSecret:   a.cfg.Auth.SharedSecret,
		CookieName:     a.cfg.Auth.CookieName,
		AllowedDomains: a.cfg.Auth.AllowedDomains,
		CookieSecure:   a.cfg.Auth.CookieSecure,
	}
	return nil
}

func (a *app) wrapWithMiddleware(handler http.Handler) http.Handler {
	if a.cfg.Auth.Enabled && a.authStore != nil {
		return auth.Middleware(a.authStore, a.cfg.Auth.CookieName, false)(handler)
	}
	return handler
}
