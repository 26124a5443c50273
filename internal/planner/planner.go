// Package planner generates purpose-tagged search queries, runs them
// concurrently, and selects which results deserve a deep crawl.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fraktionswerk/draftflow/internal/aijson"
	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/metrics"
	"github.com/fraktionswerk/draftflow/internal/util"
)

// SearchQuery is one planned query with its purpose tag.
type SearchQuery struct {
	Text     string `json:"text"`
	Purpose  string `json:"purpose"`
	Category string `json:"category,omitempty"`
}

// SearchResult is one deduplicated search hit, unique by URL per session.
type SearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Purpose     string `json:"purpose"`
	SourceQuery string `json:"source_query"`
}

// PlanResult is the outcome of planning and executing the search round.
type PlanResult struct {
	Results   []SearchResult            `json:"results"`
	ByPurpose map[string][]SearchResult `json:"by_purpose"`
}

// Config bounds the planner.
type Config struct {
	MaxQueries          int
	MaxResults          int
	MaxResultsPerQuery  int
	MaxConcurrentSearch int
	Language            string
}

// Planner plans and executes the search phase.
type Planner struct {
	ai     capability.AIClient
	search capability.SearchClient
	cfg    Config
	logger *zap.Logger
}

// New creates a planner.
func New(ai capability.AIClient, search capability.SearchClient, cfg Config, logger *zap.Logger) *Planner {
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 5
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 24
	}
	if cfg.MaxResultsPerQuery <= 0 {
		cfg.MaxResultsPerQuery = 8
	}
	if cfg.MaxConcurrentSearch <= 0 {
		cfg.MaxConcurrentSearch = 4
	}
	return &Planner{ai: ai, search: search, cfg: cfg, logger: logger}
}

var queryPurposes = []string{"facts", "legal", "examples", "local", "news"}

// GenerateQueries asks the AI capability for purpose-tagged queries. Any
// failure degrades to a single deterministic query built from the raw inputs.
func (p *Planner) GenerateQueries(ctx context.Context, topic, details, requestType string) []SearchQuery {
	resp, err := p.ai.Generate(ctx, capability.GenerationRequest{
		Purpose:      "query_generation",
		SystemPrompt: buildQueryPrompt(p.cfg.MaxQueries, requestType),
		Messages: []capability.Message{
			{Role: "user", Content: fmt.Sprintf("Thema: %s\nDetails: %s", topic, details)},
		},
		Options: capability.GenerationOptions{MaxTokens: 1024, Temperature: 0.3},
	})

	queries := p.parseQueries(resp, err)
	if len(queries) == 0 {
		p.logger.Warn("Query generation degraded to deterministic fallback",
			zap.String("topic", util.TruncateString(topic, 80, true)),
			zap.Error(err),
		)
		queries = []SearchQuery{fallbackQuery(topic, details)}
	}
	if len(queries) > p.cfg.MaxQueries {
		queries = queries[:p.cfg.MaxQueries]
	}
	return queries
}

func (p *Planner) parseQueries(resp *capability.GenerationResponse, callErr error) []SearchQuery {
	if callErr != nil || resp == nil || !resp.Success {
		return nil
	}

	var parsed struct {
		Queries []SearchQuery `json:"queries"`
	}

	// Prefer the structured tool call; fall back to JSON embedded in prose.
	if len(resp.ToolCalls) > 0 {
		if err := aijson.Parse(string(resp.ToolCalls[0].Arguments), &parsed); err != nil {
			p.logger.Warn("Failed to parse query tool call", zap.Error(err))
		}
	}
	if len(parsed.Queries) == 0 && resp.Content != "" {
		if err := aijson.ParseBlock(resp.Content, &parsed); err != nil {
			p.logger.Warn("Failed to parse query content", zap.Error(err))
		}
	}

	var out []SearchQuery
	for _, q := range parsed.Queries {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			continue
		}
		if !util.ContainsString(queryPurposes, q.Purpose) {
			q.Purpose = "facts"
		}
		out = append(out, q)
	}
	return out
}

func fallbackQuery(topic, details string) SearchQuery {
	text := strings.TrimSpace(topic)
	if d := strings.TrimSpace(details); d != "" {
		text = text + " " + util.TruncateString(d, 80, true)
	}
	return SearchQuery{Text: text, Purpose: "facts"}
}

func buildQueryPrompt(maxQueries int, requestType string) string {
	var sb strings.Builder
	sb.WriteString("You plan web research for a German civic drafting assistant.\n")
	sb.WriteString(fmt.Sprintf("Generate up to %d search queries for the user's topic.\n", maxQueries))
	sb.WriteString(fmt.Sprintf("The document being drafted is of type %q.\n\n", requestType))
	sb.WriteString("Cover diverse purposes: " + strings.Join(queryPurposes, ", ") + ".\n")
	sb.WriteString("Queries must be specific and searchable, in the topic's language.\n\n")
	sb.WriteString("Respond with a JSON object:\n")
	sb.WriteString(`{"queries": [{"text": "...", "purpose": "facts", "category": "news"}]}` + "\n")
	return sb.String()
}

// ExecuteSearches runs all queries concurrently with bounded fan-out. A
// failed query yields an empty result list; it never fails the batch.
// Surviving results are deduplicated by URL and interleaved round-robin by
// purpose so no single purpose dominates the head of the list.
func (p *Planner) ExecuteSearches(ctx context.Context, queries []SearchQuery) PlanResult {
	perQuery := make([][]SearchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentSearch)

	for i, q := range queries {
		g.Go(func() error {
			resp, err := p.search.Search(gctx, q.Text, capability.SearchOptions{
				MaxResults: p.cfg.MaxResultsPerQuery,
				Language:   p.cfg.Language,
				Category:   q.Category,
			})
			if err != nil || resp == nil || !resp.Success {
				metrics.SearchQueriesExecuted.WithLabelValues(q.Purpose, "error").Inc()
				p.logger.Warn("Search query failed, continuing without it",
					zap.String("query", util.TruncateString(q.Text, 80, true)),
					zap.Error(err),
				)
				return nil
			}
			metrics.SearchQueriesExecuted.WithLabelValues(q.Purpose, "ok").Inc()

			results := make([]SearchResult, 0, len(resp.Results))
			for _, r := range resp.Results {
				if r.URL == "" {
					continue
				}
				results = append(results, SearchResult{
					URL:         r.URL,
					Title:       r.Title,
					Snippet:     r.Snippet,
					Purpose:     q.Purpose,
					SourceQuery: q.Text,
				})
			}
			perQuery[i] = results // each worker owns its own slot
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; isolation by design

	interleaved := dedupeInterleave(perQuery, p.cfg.MaxResults)
	metrics.SearchResultsReturned.Observe(float64(len(interleaved)))

	byPurpose := make(map[string][]SearchResult)
	for _, r := range interleaved {
		byPurpose[r.Purpose] = append(byPurpose[r.Purpose], r)
	}
	return PlanResult{Results: interleaved, ByPurpose: byPurpose}
}

// dedupeInterleave removes duplicate URLs across all query result lists, then
// interleaves the survivors round-robin by purpose. Purpose order follows
// first appearance; within a purpose, original ranking is preserved. This is
// a fairness policy for the head of the list, not an optimization.
func dedupeInterleave(perQuery [][]SearchResult, maxTotal int) []SearchResult {
	seen := make(map[string]struct{})
	groups := make(map[string][]SearchResult)
	var purposeOrder []string

	for _, results := range perQuery {
		for _, r := range results {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			if _, ok := groups[r.Purpose]; !ok {
				purposeOrder = append(purposeOrder, r.Purpose)
			}
			groups[r.Purpose] = append(groups[r.Purpose], r)
		}
	}

	var out []SearchResult
	for round := 0; ; round++ {
		advanced := false
		for _, purpose := range purposeOrder {
			group := groups[purpose]
			if round >= len(group) {
				continue
			}
			advanced = true
			out = append(out, group[round])
			if maxTotal > 0 && len(out) >= maxTotal {
				return out
			}
		}
		if !advanced {
			return out
		}
	}
}
