// Package search implements the web search Provider backed by a SearXNG
// instance, with JSON-first/HTML-fallback parsing, UA rotation, a
// token-bucket throttle, and exponential backoff with jitter on retry.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Provider performs web searches. The research pipeline's
// Search-and-Summarize stage depends on this interface, not on SearXNG
// directly, so a fake can stand in for tests.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// RateLimitConfig controls the throttle and retry behavior applied to
// outgoing SearXNG requests.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	JitterPercent     float64
}

// DefaultRateLimitConfig returns conservative defaults that avoid getting a
// shared SearXNG instance rate-limited or banned.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 0.5,
		BurstSize:         2,
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		JitterPercent:     0.3,
	}
}

type tokenBucket struct {
	capacity   int
	tokens     int
	refillAt   time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate time.Duration) *tokenBucket {
	return &tokenBucket{capacity: capacity, tokens: capacity, refillAt: time.Now(), refillRate: refillRate}
}

func (tb *tokenBucket) takeToken() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if now.After(tb.refillAt) {
		elapsed := now.Sub(tb.refillAt)
		tokensToAdd := int(elapsed / tb.refillRate)
		if tokensToAdd > 0 {
			tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
			tb.refillAt = tb.refillAt.Add(time.Duration(tokensToAdd) * tb.refillRate)
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *tokenBucket) waitForToken(ctx context.Context) error {
	for {
		if tb.takeToken() {
			return nil
		}

		tb.mu.Lock()
		waitTime := time.Until(tb.refillAt)
		tb.mu.Unlock()
		if waitTime <= 0 {
			waitTime = tb.refillRate
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

// Searcher implements Provider against a SearXNG instance.
type Searcher struct {
	http        *http.Client
	baseURL     string
	rateLimiter *tokenBucket
	cfg         RateLimitConfig
}

// New constructs a Searcher against the given SearXNG base URL using the
// default rate-limit configuration.
func New(baseURL string, timeout time.Duration) *Searcher {
	return NewWithConfig(baseURL, timeout, DefaultRateLimitConfig())
}

// NewWithConfig constructs a Searcher with a custom rate-limit configuration.
func NewWithConfig(baseURL string, timeout time.Duration, cfg RateLimitConfig) *Searcher {
	refillRate := time.Duration(float64(time.Second) / cfg.RequestsPerSecond)
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Searcher{
		http:        &http.Client{Timeout: timeout},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		rateLimiter: newTokenBucket(cfg.BurstSize, refillRate),
		cfg:         cfg,
	}
}

// Search performs a web search, preferring SearXNG's JSON API and falling
// back to HTML result-link scraping when JSON is unavailable.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 || maxResults > 20 {
		maxResults = 5
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}

	if err := s.rateLimiter.waitForToken(ctx); err != nil {
		return nil, fmt.Errorf("search: rate limited: %w", err)
	}

	return s.searchWithRetry(ctx, query, maxResults)
}

func (s *Searcher) searchWithRetry(ctx context.Context, query string, max int) ([]Result, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		results, err := s.searchOnce(ctx, query, max)
		if err == nil && len(results) > 0 {
			return results, nil
		}
		lastErr = err

		delay := s.cfg.BaseDelay * (1 << attempt)
		if delay > s.cfg.MaxDelay {
			delay = s.cfg.MaxDelay
		}
		jitter := time.Duration(float64(delay) * s.cfg.JitterPercent * (0.5 + randFloat64()))
		delay += jitter

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("search failed after %d retries: %w", s.cfg.MaxRetries, lastErr)
}

func randFloat64() float64 {
	return float64(time.Now().UnixNano()%1000) / 1000.0
}

func (s *Searcher) searchOnce(ctx context.Context, query string, max int) ([]Result, error) {
	results, err := s.searchJSON(ctx, query, max)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	return s.searchHTML(ctx, query, max)
}

func (s *Searcher) newRequest(ctx context.Context, params url.Values) (*http.Request, error) {
	searchURL := fmt.Sprintf("%s/search", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	ua := userAgents[int(time.Now().UnixNano())%len(userAgents)]
	req.Header.Set("User-Agent", ua)
	return req, nil
}

func (s *Searcher) searchJSON(ctx context.Context, query string, max int) ([]Result, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("categories", "general")

	req, err := s.newRequest(ctx, v)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("searxng http %d", resp.StatusCode)
	}

	var searxngResp struct {
		Results []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			Content       string `json:"content"`
			PublishedDate string `json:"publishedDate"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searxngResp); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(searxngResp.Results))
	for i, r := range searxngResp.Results {
		if i >= max {
			break
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Snippet: strings.TrimSpace(r.Content),
			Date:    strings.TrimSpace(r.PublishedDate),
		})
	}
	return out, nil
}

func (s *Searcher) searchHTML(ctx context.Context, query string, max int) ([]Result, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("categories", "general")

	req, err := s.newRequest(ctx, v)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("searxng http %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	urls := extractURLsFromHTML(root)
	out := make([]Result, 0, len(urls))
	seen := map[string]struct{}{}

	for _, urlStr := range urls {
		if _, exists := seen[urlStr]; exists {
			continue
		}
		seen[urlStr] = struct{}{}

		title := urlStr
		if u, err := url.Parse(urlStr); err == nil && u.Host != "" {
			title = u.Host + u.Path
		}

		out = append(out, Result{Title: title, URL: urlStr})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func extractURLsFromHTML(doc *html.Node) []string {
	var urls []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.Contains(attr.Val, "http") {
					urls = append(urls, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return urls
}

var _ Provider = (*Searcher)(nil)
