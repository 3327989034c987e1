package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRateLimitConfig() RateLimitConfig {
	cfg := DefaultRateLimitConfig()
	cfg.RequestsPerSecond = 1000
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestSearch_PrefersJSONResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"A","url":"https://a.example"},{"title":"B","url":"https://b.example"}]}`))
	}))
	defer srv.Close()

	s := NewWithConfig(srv.URL, time.Second, fastRateLimitConfig())
	results, err := s.Search(context.Background(), "golang", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "A", results[0].Title)
}

func TestSearch_DecodesSnippetAndDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"A","url":"https://a.example","content":"A short summary.","publishedDate":"2026-01-15"}]}`))
	}))
	defer srv.Close()

	s := NewWithConfig(srv.URL, time.Second, fastRateLimitConfig())
	results, err := s.Search(context.Background(), "golang", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "A short summary.", results[0].Snippet)
	require.Equal(t, "2026-01-15", results[0].Date)
}

func TestSearch_FallsBackToHTMLWhenJSONEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "json" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="https://example.com/page">link</a></body></html>`))
	}))
	defer srv.Close()

	s := NewWithConfig(srv.URL, time.Second, fastRateLimitConfig())
	results, err := s.Search(context.Background(), "golang", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "https://example.com/page", results[0].URL)
}

func TestSearch_EmptyQueryErrors(t *testing.T) {
	s := NewWithConfig("http://localhost:1", time.Second, fastRateLimitConfig())
	_, err := s.Search(context.Background(), "   ", 5)
	require.Error(t, err)
}

func TestSearch_ClampsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"A","url":"https://a.example"},{"title":"B","url":"https://b.example"},{"title":"C","url":"https://c.example"}]}`))
	}))
	defer srv.Close()

	s := NewWithConfig(srv.URL, time.Second, fastRateLimitConfig())
	results, err := s.Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
}
