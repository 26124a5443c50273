// Package enricher deep-fetches selected search results and merges page
// content back into the result set, degrading to snippets on failure.
package enricher

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/metrics"
	"github.com/fraktionswerk/draftflow/internal/planner"
)

// EnrichedResult is a search result with its final content: the fetched page
// text for crawled results, the snippet for everything else.
type EnrichedResult struct {
	planner.SearchResult
	Content   string `json:"content"`
	Crawled   bool   `json:"crawled"`
	WordCount int    `json:"word_count,omitempty"`
}

// Config bounds the enricher.
type Config struct {
	FetchTimeout     time.Duration
	MaxContentLength int
	MaxConcurrent    int
}

// Enricher executes the crawl plan.
type Enricher struct {
	fetch  capability.FetchClient
	cfg    Config
	logger *zap.Logger
}

// New creates an enricher.
func New(fetch capability.FetchClient, cfg Config, logger *zap.Logger) *Enricher {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Enricher{fetch: fetch, cfg: cfg, logger: logger}
}

// Enrich fetches the decided URLs concurrently, each bounded by the
// configured timeout. A failed or empty fetch downgrades that one result to
// snippet-only; results not selected for crawling pass through with their
// snippet as content. Output preserves the input ordering.
func (e *Enricher) Enrich(ctx context.Context, results []planner.SearchResult, decisions []planner.CrawlDecision) []EnrichedResult {
	fetched := make([]*capability.FetchResult, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrent)

	for _, d := range decisions {
		if d.ResultIndex < 0 || d.ResultIndex >= len(results) {
			continue
		}
		g.Go(func() error {
			res, err := e.fetch.FetchURL(gctx, d.URL, capability.FetchOptions{
				Timeout:          e.cfg.FetchTimeout,
				MaxContentLength: e.cfg.MaxContentLength,
			})
			if err != nil || res == nil || !res.Success {
				metrics.CrawlFetches.WithLabelValues("degraded").Inc()
				e.logger.Warn("Crawl fetch degraded to snippet",
					zap.String("url", d.URL),
					zap.Error(err),
				)
				return nil
			}
			metrics.CrawlFetches.WithLabelValues("ok").Inc()
			fetched[d.ResultIndex] = res // one decision per index after planner dedupe
			return nil
		})
	}
	_ = g.Wait() // failures degrade individually; never fail the batch

	out := make([]EnrichedResult, 0, len(results))
	for i, r := range results {
		er := EnrichedResult{SearchResult: r, Content: r.Snippet}
		if f := fetched[i]; f != nil {
			er.Content = f.Content
			er.Crawled = true
			er.WordCount = f.WordCount
		}
		out = append(out, er)
	}
	return out
}
