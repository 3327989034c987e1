package research

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"deepresearch/internal/cache"
	"deepresearch/internal/fetch"
	"deepresearch/internal/llm"
	"deepresearch/internal/search"
)

// Pipeline implements the Search-and-Summarize stage: search, select,
// fetch, and summarize, reporting one SearchEntry to the SystemContext.
type Pipeline struct {
	Search  search.Provider
	Fetcher *fetch.Fetcher
	Gateway llm.Gateway
	Cache   *cache.Cache

	ResultCount int // SEARCH_RESULTS_COUNT
	MaxPages    int // MAX_PAGES_TO_SCRAPE
	Concurrency int
}

// Run executes one Search-and-Summarize pass for the given query, emitting
// a data-sources event through w and appending a SearchEntry to sc. Partial
// failures (zero search results, per-URL fetch errors, summarizer errors)
// degrade the entry rather than aborting the pipeline.
func (p *Pipeline) Run(ctx context.Context, sc *SystemContext, query string, w StreamWriter) error {
	results, err := p.Search.Search(ctx, query, p.ResultCount)
	if err != nil || len(results) == 0 {
		if werr := w.Write(Part{Type: PartSources, ID: newEventID(), Sources: []SearchSource{}}); werr != nil {
			return werr
		}
		sc.ReportSearch(SearchEntry{Query: query})
		return nil
	}

	maxPages := p.MaxPages
	if maxPages <= 0 || maxPages > len(results) {
		maxPages = len(results)
	}
	selected := results[:maxPages]

	sources := make([]SearchSource, len(selected))
	for i, r := range selected {
		sources[i] = SearchSource{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
			Date:    r.Date,
			Favicon: faviconFor(r.URL),
		}
	}
	if err := w.Write(Part{Type: PartSources, ID: newEventID(), Sources: sources}); err != nil {
		return err
	}

	contents := p.fetchAll(ctx, sources)
	summaries := p.summarizeAll(ctx, sc, query, sources, contents)

	sc.ReportSearch(SearchEntry{Query: query, Sources: sources, Summaries: summaries})
	return nil
}

func (p *Pipeline) fetchAll(ctx context.Context, sources []SearchSource) []string {
	contents := make([]string, len(sources))
	conc := p.Concurrency
	if conc <= 0 {
		conc = 4
	}
	var g errgroup.Group
	g.SetLimit(conc)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			raw, err := p.Cache.GetOrCompute(ctx, "fetch", src.URL, func(ctx context.Context) ([]byte, error) {
				res, err := p.Fetcher.FetchMarkdown(ctx, src.URL)
				if err != nil {
					return nil, err
				}
				return []byte(res.Markdown), nil
			})
			if err != nil {
				contents[i] = fmt.Sprintf("Error: %s", err.Error())
				return nil
			}
			contents[i] = string(raw)
			return nil
		})
	}
	_ = g.Wait()
	return contents
}

func (p *Pipeline) summarizeAll(ctx context.Context, sc *SystemContext, query string, sources []SearchSource, contents []string) []string {
	summaries := make([]string, len(sources))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(1, p.Concurrency))
	history := sc.ConversationHistory()

	for i := range sources {
		i := i
		g.Go(func() error {
			summary, usage, err := p.summarizeOne(ctx, history, contents[i], sources[i], query)
			if err != nil {
				summaries[i] = fallbackSummary(sources[i])
				return nil
			}
			summaries[i] = summary
			mu.Lock()
			sc.ReportUsage("summarize:"+sources[i].URL, usage)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return summaries
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type summarizeArgs struct {
	History string `json:"history"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Query   string `json:"query"`
}

func (p *Pipeline) summarizeOne(ctx context.Context, history, content string, src SearchSource, query string) (string, llm.Usage, error) {
	args := summarizeArgs{History: history, Content: content, URL: src.URL, Query: query}

	var usage llm.Usage
	raw, err := p.Cache.GetOrCompute(ctx, "summarize", args, func(ctx context.Context) ([]byte, error) {
		msgs := []llm.Message{
			{Role: llm.RoleSystem, Content: "Produce a cohesive narrative extraction of facts relevant to the query from the supplied content. Preserve dates and statistics. Never invent information outside the supplied content."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Query: %s\n\nConversation so far:\n%s\n\nFetched content from %s:\n%s", query, history, src.URL, content)},
		}
		text, callUsage, err := p.Gateway.GenerateText(ctx, msgs)
		if err != nil {
			return nil, err
		}
		usage = callUsage
		return []byte(text), nil
	})
	if err != nil {
		return "", llm.Usage{}, err
	}
	return string(raw), usage, nil
}

func fallbackSummary(src SearchSource) string {
	return "Unable to generate summary. Based on snippet: " + src.Snippet
}

func faviconFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/favicon.ico", u.Host)
}
