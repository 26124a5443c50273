package enricher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/planner"
)

type fakeFetch struct {
	mu    sync.Mutex
	calls []capability.FetchOptions
	fn    func(url string) (*capability.FetchResult, error)
}

func (f *fakeFetch) FetchURL(ctx context.Context, url string, opts capability.FetchOptions) (*capability.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	return f.fn(url)
}

func someResults() []planner.SearchResult {
	return []planner.SearchResult{
		{URL: "https://a", Title: "A", Snippet: "snippet a", Purpose: "facts"},
		{URL: "https://b", Title: "B", Snippet: "snippet b", Purpose: "legal"},
		{URL: "https://c", Title: "C", Snippet: "snippet c", Purpose: "news"},
	}
}

func TestEnrichMergesFetchedContentAndPreservesOrder(t *testing.T) {
	fetch := &fakeFetch{fn: func(url string) (*capability.FetchResult, error) {
		return &capability.FetchResult{Success: true, Content: "full text of " + url, WordCount: 4}, nil
	}}
	e := New(fetch, Config{}, zap.NewNop())

	out := e.Enrich(context.Background(), someResults(), []planner.CrawlDecision{
		{ResultIndex: 1, URL: "https://b"},
	})

	require.Len(t, out, 3)
	assert.Equal(t, []string{"https://a", "https://b", "https://c"},
		[]string{out[0].URL, out[1].URL, out[2].URL})

	assert.False(t, out[0].Crawled)
	assert.Equal(t, "snippet a", out[0].Content)

	assert.True(t, out[1].Crawled)
	assert.Equal(t, "full text of https://b", out[1].Content)
	assert.Equal(t, 4, out[1].WordCount)
}

func TestEnrichDegradesFailedFetchToSnippet(t *testing.T) {
	fetch := &fakeFetch{fn: func(url string) (*capability.FetchResult, error) {
		if url == "https://a" {
			return nil, errors.New("connection refused")
		}
		return &capability.FetchResult{Success: true, Content: "ok"}, nil
	}}
	e := New(fetch, Config{}, zap.NewNop())

	out := e.Enrich(context.Background(), someResults(), []planner.CrawlDecision{
		{ResultIndex: 0, URL: "https://a"},
		{ResultIndex: 2, URL: "https://c"},
	})

	assert.False(t, out[0].Crawled)
	assert.Equal(t, "snippet a", out[0].Content)
	assert.True(t, out[2].Crawled)
}

func TestEnrichTreatsEmptyFetchAsFailure(t *testing.T) {
	fetch := &fakeFetch{fn: func(string) (*capability.FetchResult, error) {
		return &capability.FetchResult{Success: false}, nil
	}}
	e := New(fetch, Config{}, zap.NewNop())

	out := e.Enrich(context.Background(), someResults(), []planner.CrawlDecision{
		{ResultIndex: 0, URL: "https://a"},
	})
	assert.False(t, out[0].Crawled)
	assert.Equal(t, "snippet a", out[0].Content)
}

func TestEnrichPassesPerCallTimeout(t *testing.T) {
	fetch := &fakeFetch{fn: func(string) (*capability.FetchResult, error) {
		return &capability.FetchResult{Success: true, Content: "x"}, nil
	}}
	e := New(fetch, Config{FetchTimeout: 7 * time.Second, MaxContentLength: 123}, zap.NewNop())

	_ = e.Enrich(context.Background(), someResults(), []planner.CrawlDecision{
		{ResultIndex: 0, URL: "https://a"},
	})

	require.Len(t, fetch.calls, 1)
	assert.Equal(t, 7*time.Second, fetch.calls[0].Timeout)
	assert.Equal(t, 123, fetch.calls[0].MaxContentLength)
}

func TestEnrichIgnoresOutOfRangeDecisions(t *testing.T) {
	fetch := &fakeFetch{fn: func(string) (*capability.FetchResult, error) {
		return &capability.FetchResult{Success: true, Content: "x"}, nil
	}}
	e := New(fetch, Config{}, zap.NewNop())

	out := e.Enrich(context.Background(), someResults(), []planner.CrawlDecision{
		{ResultIndex: -1, URL: "https://nope"},
		{ResultIndex: 9, URL: "https://nope"},
	})
	require.Len(t, out, 3)
	assert.Empty(t, fetch.calls)
}
