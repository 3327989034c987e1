package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"deepresearch/internal/cache"
	"deepresearch/internal/config"
	"deepresearch/internal/fetch"
	"deepresearch/internal/llm"
	"deepresearch/internal/search"
)

type fakeSearch struct {
	results []search.Result
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestPipeline_Run_ZeroResultsDegradesToEmptySources(t *testing.T) {
	noCache, _ := cache.New(config.RedisConfig{}, 0)
	p := &Pipeline{
		Search:      &fakeSearch{},
		Fetcher:     fetch.NewFetcher(),
		Gateway:     &countingTextGateway{text: "summary"},
		Cache:       noCache,
		ResultCount: 3,
		MaxPages:    3,
		Concurrency: 2,
	}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "an obscure query"}}, nil, 5)
	w := &recordingWriter{}
	if err := p.Run(context.Background(), sc, "an obscure query", w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sourcesEvents := 0
	for _, part := range w.parts {
		if part.Type == PartSources {
			sourcesEvents++
			if len(part.Sources) != 0 {
				t.Fatalf("Sources = %v, want empty on zero search results", part.Sources)
			}
		}
	}
	if sourcesEvents != 1 {
		t.Fatalf("data-sources events = %d, want 1", sourcesEvents)
	}
	if len(sc.SearchHistoryText()) == 0 {
		t.Fatalf("expected a degraded SearchEntry to still be reported")
	}
}

func TestPipeline_Run_FetchesAndSummarizesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><article><h1>Title</h1><p>Some article body text about generics.</p></article></body></html>"))
	}))
	defer srv.Close()

	noCache, _ := cache.New(config.RedisConfig{}, 0)
	p := &Pipeline{
		Search:      &fakeSearch{results: []search.Result{{Title: "Go Blog", URL: srv.URL}}},
		Fetcher:     fetch.NewFetcher(),
		Gateway:     &countingTextGateway{text: "Go 1.18 shipped generics."},
		Cache:       noCache,
		ResultCount: 3,
		MaxPages:    3,
		Concurrency: 2,
	}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "when did generics ship"}}, nil, 5)
	w := &recordingWriter{}
	if err := p.Run(context.Background(), sc, "when did generics ship", w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	found := false
	for _, part := range w.parts {
		if part.Type == PartSources && len(part.Sources) == 1 {
			found = true
			if part.Sources[0].URL != srv.URL {
				t.Fatalf("Sources[0].URL = %q, want %q", part.Sources[0].URL, srv.URL)
			}
		}
	}
	if !found {
		t.Fatalf("expected a data-sources event with one source")
	}
	if sc.SearchHistoryText() == "" {
		t.Fatalf("expected SearchHistoryText to be populated")
	}
}

func TestPipeline_Run_SearchErrorDegradesToEmptySources(t *testing.T) {
	noCache, _ := cache.New(config.RedisConfig{}, 0)
	p := &Pipeline{
		Search:      &fakeSearch{err: errBoom},
		Fetcher:     fetch.NewFetcher(),
		Gateway:     &countingTextGateway{},
		Cache:       noCache,
		ResultCount: 3,
		MaxPages:    3,
		Concurrency: 2,
	}

	sc := NewSystemContext(nil, nil, 5)
	w := &recordingWriter{}
	if err := p.Run(context.Background(), sc, "query", w); err != nil {
		t.Fatalf("Run() error = %v, want nil (search errors degrade rather than abort)", err)
	}
	if w.countType(PartSources) != 1 {
		t.Fatalf("data-sources events = %d, want 1", w.countType(PartSources))
	}
}
