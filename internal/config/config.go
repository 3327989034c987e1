// Package config loads deepresearch's runtime configuration from the
// environment, following the teacher's env-first convention (godotenv
// overlay + manual os.Getenv parsing, no framework).
package config

// OpenAIConfig configures the OpenAI-backed Gateway provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AnthropicPromptCacheConfig controls Anthropic prompt-caching scopes.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheMessages bool
}

// AnthropicConfig configures the Anthropic-backed Gateway provider.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	PromptCache AnthropicPromptCacheConfig
}

// GoogleConfig configures the Gemini-backed Gateway provider.
type GoogleConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// LLMConfig selects and configures the Model Gateway backend.
type LLMConfig struct {
	// Provider selects which backend implements the Gateway: "openai",
	// "anthropic", or "google".
	Provider    string
	OpenAI      OpenAIConfig
	Anthropic   AnthropicConfig
	Google      GoogleConfig
	LogPayloads bool
}

// SearchConfig configures the SearXNG-backed search provider.
type SearchConfig struct {
	BaseURL     string
	ResultCount int
	Timeout     int // seconds
}

// FetchConfig configures the page-fetch/readability pipeline.
type FetchConfig struct {
	MaxPages    int
	Concurrency int
	Timeout     int // seconds
}

// AgentConfig configures the deep-research agent loop.
type AgentConfig struct {
	MaxSteps int
}

// RateLimitConfig configures the fixed-window rate limiter.
type RateLimitConfig struct {
	Requests int
	Window   int // seconds
}

// CacheConfig configures the content-addressed result cache.
type CacheConfig struct {
	TTLSeconds int
}

// DatabaseConfig configures the durable chat store. An empty DSN selects
// the in-memory chat store.
type DatabaseConfig struct {
	DSN string
}

// RedisConfig configures the shared cache/rate-limiter backing store.
type RedisConfig struct {
	URL string
}

// AuthConfig configures the session auth store. The real identity check
// (validating who a caller is) is an external collaborator's job; agentd
// trusts a shared secret supplied by that upstream collaborator and mints
// its own sessions from there.
type AuthConfig struct {
	Enabled        bool
	SharedSecret   string
	CookieName     string
	AllowedDomains []string
	CookieSecure   bool
}

// OTelConfig controls OpenTelemetry export.
type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Config is the fully resolved runtime configuration for agentd.
type Config struct {
	Host string
	Port int

	LogPath string
	LogLevel string

	LLM       LLMConfig
	Search    SearchConfig
	Fetch     FetchConfig
	Agent     AgentConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	OTel      OTelConfig
}
