package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment variables.
	// This lets a local .env deterministically control runtime behavior in
	// development unless explicitly overridden.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("HOST")), "0.0.0.0")
	cfg.Port = intFromEnv("PORT", 8080)

	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")

	cfg.LLM.Provider = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), "openai")
	cfg.LLM.LogPayloads = boolFromEnv("LOG_PAYLOADS", false)

	cfg.LLM.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLM.OpenAI.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_MODEL")), "gpt-4o-mini")
	cfg.LLM.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

	cfg.LLM.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLM.Anthropic.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")), "claude-3-7-sonnet-latest")
	cfg.LLM.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	cfg.LLM.Anthropic.PromptCache.Enabled = boolFromEnv("ANTHROPIC_PROMPT_CACHE", false)
	if cfg.LLM.Anthropic.PromptCache.Enabled {
		cfg.LLM.Anthropic.PromptCache.CacheSystem = true
		cfg.LLM.Anthropic.PromptCache.CacheMessages = true
	}

	cfg.LLM.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	cfg.LLM.Google.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_MODEL")), "gemini-1.5-flash")
	cfg.LLM.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_BASE_URL"))

	cfg.Search.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("SEARXNG_BASE_URL")), "http://localhost:8888")
	cfg.Search.ResultCount = intFromEnv("SEARCH_RESULTS_COUNT", 8)
	cfg.Search.Timeout = intFromEnv("SEARCH_TIMEOUT_SECONDS", 10)

	cfg.Fetch.MaxPages = intFromEnv("MAX_PAGES_TO_SCRAPE", 5)
	cfg.Fetch.Concurrency = intFromEnv("FETCH_CONCURRENCY", 4)
	cfg.Fetch.Timeout = intFromEnv("FETCH_TIMEOUT_SECONDS", 15)

	cfg.Agent.MaxSteps = intFromEnv("MAX_STEPS", 6)

	cfg.RateLimit.Requests = intFromEnv("RATE_LIMIT_REQUESTS", 20)
	cfg.RateLimit.Window = intFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)

	cfg.Cache.TTLSeconds = intFromEnv("CACHE_TTL_SECONDS", 3600)

	cfg.Database.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.Redis.URL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	cfg.Auth.Enabled = boolFromEnv("AUTH_ENABLED", false)
	cfg.Auth.SharedSecret = strings.TrimSpace(os.Getenv("AUTH_SHARED_SECRET"))
	cfg.Auth.CookieName = firstNonEmpty(strings.TrimSpace(os.Getenv("AUTH_COOKIE_NAME")), "deepresearch_session")
	cfg.Auth.CookieSecure = boolFromEnv("AUTH_COOKIE_SECURE", true)
	if domains := strings.TrimSpace(os.Getenv("AUTH_ALLOWED_DOMAINS")); domains != "" {
		for _, d := range strings.Split(domains, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Auth.AllowedDomains = append(cfg.Auth.AllowedDomains, d)
			}
		}
	}

	cfg.OTel.Enabled = boolFromEnv("OTEL_ENABLED", false)
	cfg.OTel.Endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.OTel.Insecure = boolFromEnv("OTEL_EXPORTER_OTLP_INSECURE", true)
	cfg.OTel.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "deepresearch-agentd")
	cfg.OTel.ServiceVersion = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_VERSION")), "dev")
	cfg.OTel.Environment = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_ENVIRONMENT")), "development")

	if err := applyModelProfile(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}
