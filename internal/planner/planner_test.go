package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/capability"
)

type fakeAI struct {
	resp *capability.GenerationResponse
	err  error
}

func (f *fakeAI) Generate(ctx context.Context, req capability.GenerationRequest) (*capability.GenerationResponse, error) {
	return f.resp, f.err
}

type fakeSearch struct {
	fn func(query string, opts capability.SearchOptions) (*capability.SearchResponse, error)
}

func (f *fakeSearch) Search(ctx context.Context, query string, opts capability.SearchOptions) (*capability.SearchResponse, error) {
	return f.fn(query, opts)
}

func toolCallResponse(name, args string) *capability.GenerationResponse {
	return &capability.GenerationResponse{
		Success:   true,
		ToolCalls: []capability.ToolCall{{Name: name, Arguments: json.RawMessage(args)}},
	}
}

func TestGenerateQueriesParsesToolCall(t *testing.T) {
	ai := &fakeAI{resp: toolCallResponse("emit_queries",
		`{"queries":[{"text":"Radwege Innenstadt Beschluss","purpose":"facts"},{"text":"StVO Radverkehr","purpose":"legal"}]}`)}
	p := New(ai, &fakeSearch{}, Config{}, zap.NewNop())

	queries := p.GenerateQueries(context.Background(), "Radwege", "mehr Radwege in der Innenstadt", "antrag")
	require.Len(t, queries, 2)
	assert.Equal(t, "facts", queries[0].Purpose)
	assert.Equal(t, "legal", queries[1].Purpose)
}

func TestGenerateQueriesFallsBackOnCapabilityError(t *testing.T) {
	ai := &fakeAI{err: errors.New("model unavailable")}
	p := New(ai, &fakeSearch{}, Config{}, zap.NewNop())

	queries := p.GenerateQueries(context.Background(), "Radwege", "Innenstadt", "antrag")
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0].Text, "Radwege")
	assert.Equal(t, "facts", queries[0].Purpose)
}

func TestGenerateQueriesCapsAtMaxQueries(t *testing.T) {
	var items []string
	for i := 0; i < 10; i++ {
		items = append(items, fmt.Sprintf(`{"text":"q%d","purpose":"facts"}`, i))
	}
	ai := &fakeAI{resp: toolCallResponse("emit_queries",
		`{"queries":[`+items[0]+`,`+items[1]+`,`+items[2]+`,`+items[3]+`,`+items[4]+`,`+items[5]+`]}`)}
	p := New(ai, &fakeSearch{}, Config{MaxQueries: 3}, zap.NewNop())

	queries := p.GenerateQueries(context.Background(), "x", "y", "antrag")
	assert.Len(t, queries, 3)
}

func TestExecuteSearchesIsolatesFailures(t *testing.T) {
	search := &fakeSearch{fn: func(query string, opts capability.SearchOptions) (*capability.SearchResponse, error) {
		if query == "bad" {
			return nil, errors.New("provider down")
		}
		return &capability.SearchResponse{Success: true, Results: []capability.SearchResultItem{
			{URL: "https://example.org/" + query, Title: query},
		}}, nil
	}}
	p := New(&fakeAI{}, search, Config{}, zap.NewNop())

	res := p.ExecuteSearches(context.Background(), []SearchQuery{
		{Text: "good1", Purpose: "facts"},
		{Text: "bad", Purpose: "legal"},
		{Text: "good2", Purpose: "examples"},
	})

	require.Len(t, res.Results, 2)
	assert.Len(t, res.ByPurpose["facts"], 1)
	assert.Len(t, res.ByPurpose["examples"], 1)
	assert.Empty(t, res.ByPurpose["legal"])
}

func TestExecuteSearchesAllFailuresYieldEmptyResult(t *testing.T) {
	search := &fakeSearch{fn: func(string, capability.SearchOptions) (*capability.SearchResponse, error) {
		return nil, errors.New("provider down")
	}}
	p := New(&fakeAI{}, search, Config{}, zap.NewNop())

	res := p.ExecuteSearches(context.Background(), []SearchQuery{
		{Text: "a", Purpose: "facts"},
		{Text: "b", Purpose: "legal"},
		{Text: "c", Purpose: "news"},
	})

	assert.Empty(t, res.Results)
	assert.Empty(t, res.ByPurpose)
}

func TestDedupeInterleaveRemovesDuplicateURLs(t *testing.T) {
	perQuery := [][]SearchResult{
		{{URL: "https://a", Purpose: "facts"}, {URL: "https://b", Purpose: "facts"}},
		{{URL: "https://a", Purpose: "legal"}, {URL: "https://c", Purpose: "legal"}},
	}

	out := dedupeInterleave(perQuery, 0)
	seen := make(map[string]int)
	for _, r := range out {
		seen[r.URL]++
	}
	for url, count := range seen {
		assert.Equal(t, 1, count, "url %s duplicated", url)
	}
	assert.Len(t, out, 3)
}

func TestDedupeInterleaveIsRoundRobinByPurpose(t *testing.T) {
	perQuery := [][]SearchResult{
		{{URL: "f1", Purpose: "facts"}, {URL: "f2", Purpose: "facts"}, {URL: "f3", Purpose: "facts"}},
		{{URL: "l1", Purpose: "legal"}, {URL: "l2", Purpose: "legal"}},
		{{URL: "e1", Purpose: "examples"}},
	}

	out := dedupeInterleave(perQuery, 0)
	urls := make([]string, len(out))
	for i, r := range out {
		urls[i] = r.URL
	}

	// One result per purpose before any purpose repeats
	assert.Equal(t, []string{"f1", "l1", "e1", "f2", "l2", "f3"}, urls)
}

func TestDedupeInterleaveTruncatesToMaxTotal(t *testing.T) {
	perQuery := [][]SearchResult{
		{{URL: "f1", Purpose: "facts"}, {URL: "f2", Purpose: "facts"}},
		{{URL: "l1", Purpose: "legal"}, {URL: "l2", Purpose: "legal"}},
	}

	out := dedupeInterleave(perQuery, 3)
	assert.Len(t, out, 3)
}
