package fetch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BulkResult pairs a fetch outcome with the URL it was requested for, so
// callers can correlate results positionally even when some fetches fail.
type BulkResult struct {
	InputURL string
	Result   *Result
	Err      error
}

// FetchAll fetches every URL concurrently, bounded by concurrency, and
// returns one BulkResult per input URL in the same order. A failed fetch
// populates Err rather than aborting the remaining fetches.
func FetchAll(ctx context.Context, f *Fetcher, urls []string, concurrency int) []BulkResult {
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]BulkResult, len(urls))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res, err := f.FetchMarkdown(ctx, u)
			results[i] = BulkResult{InputURL: u, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
