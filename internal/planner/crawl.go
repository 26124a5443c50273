package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/aijson"
	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/util"
)

// CrawlDecision selects one search result for deep fetching.
type CrawlDecision struct {
	ResultIndex   int    `json:"result_index"`
	URL           string `json:"url"`
	Reason        string `json:"reason"`
	ExpectedValue string `json:"expected_value"` // "high", "medium", "low"
}

// maxCandidatesShown bounds how many results are presented for selection.
const maxCandidatesShown = 12

// SelectCrawlTargets asks the AI capability which results deserve a deep
// crawl, presenting titles and snippets against an explicit rubric. Malformed
// output falls back deterministically to the top maxCrawls results in their
// original order, tagged with a synthetic low-confidence reason.
func (p *Planner) SelectCrawlTargets(ctx context.Context, results []SearchResult, topic, details string, maxCrawls int) []CrawlDecision {
	if maxCrawls <= 0 || len(results) == 0 {
		return nil
	}

	resp, err := p.ai.Generate(ctx, capability.GenerationRequest{
		Purpose:      "crawl_selection",
		SystemPrompt: buildCrawlPrompt(maxCrawls),
		Messages: []capability.Message{
			{Role: "user", Content: buildCrawlContent(results, topic, details)},
		},
		Options: capability.GenerationOptions{MaxTokens: 1024, Temperature: 0.2},
	})

	decisions := p.parseCrawlSelection(resp, err, results, maxCrawls)
	if decisions == nil {
		p.logger.Warn("Crawl selection degraded to top-ranked fallback",
			zap.Int("max_crawls", maxCrawls),
			zap.Error(err),
		)
		decisions = fallbackCrawlDecisions(results, maxCrawls)
	}
	return decisions
}

func (p *Planner) parseCrawlSelection(resp *capability.GenerationResponse, callErr error, results []SearchResult, maxCrawls int) []CrawlDecision {
	if callErr != nil || resp == nil || !resp.Success {
		return nil
	}

	var parsed struct {
		Selections []struct {
			Index         int    `json:"index"`
			Reason        string `json:"reason"`
			ExpectedValue string `json:"expected_value"`
		} `json:"selections"`
	}

	var parseErr error
	if len(resp.ToolCalls) > 0 {
		parseErr = aijson.Parse(string(resp.ToolCalls[0].Arguments), &parsed)
	} else {
		parseErr = aijson.ParseBlock(resp.Content, &parsed)
	}
	if parseErr != nil {
		p.logger.Warn("Failed to parse crawl selection", zap.Error(parseErr))
		return nil
	}
	if len(parsed.Selections) == 0 {
		return nil
	}

	seen := make(map[int]struct{})
	var decisions []CrawlDecision
	for _, sel := range parsed.Selections {
		if len(decisions) >= maxCrawls {
			break
		}
		if sel.Index < 0 || sel.Index >= len(results) {
			continue
		}
		if _, dup := seen[sel.Index]; dup {
			continue
		}
		seen[sel.Index] = struct{}{}

		ev := sel.ExpectedValue
		if ev == "" {
			ev = "medium"
		}
		decisions = append(decisions, CrawlDecision{
			ResultIndex:   sel.Index,
			URL:           results[sel.Index].URL,
			Reason:        sel.Reason,
			ExpectedValue: ev,
		})
	}
	if len(decisions) == 0 {
		return nil
	}
	return decisions
}

func fallbackCrawlDecisions(results []SearchResult, maxCrawls int) []CrawlDecision {
	n := maxCrawls
	if n > len(results) {
		n = len(results)
	}
	decisions := make([]CrawlDecision, 0, n)
	for i := 0; i < n; i++ {
		decisions = append(decisions, CrawlDecision{
			ResultIndex:   i,
			URL:           results[i].URL,
			Reason:        "top-ranked result, selected without model guidance",
			ExpectedValue: "low",
		})
	}
	return decisions
}

func buildCrawlPrompt(maxCrawls int) string {
	var sb strings.Builder
	sb.WriteString("You decide which search results deserve a full-page crawl.\n\n")
	sb.WriteString("Judge each candidate by this rubric:\n")
	sb.WriteString("- relevance: does it address the topic directly?\n")
	sb.WriteString("- authority: is the source official or otherwise credible?\n")
	sb.WriteString("- uniqueness: does it add something the snippets lack?\n")
	sb.WriteString("- depth: is there substance beyond the snippet?\n")
	sb.WriteString("- accessibility: is the page likely machine-readable (no paywall)?\n\n")
	sb.WriteString(fmt.Sprintf("Select at most %d candidates.\n\n", maxCrawls))
	sb.WriteString("Respond with a JSON object:\n")
	sb.WriteString(`{"selections": [{"index": 0, "reason": "...", "expected_value": "high"}]}` + "\n")
	return sb.String()
}

func buildCrawlContent(results []SearchResult, topic, details string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Topic\n%s\n", topic))
	if details != "" {
		sb.WriteString(fmt.Sprintf("\n## Details\n%s\n", util.TruncateString(details, 400, true)))
	}
	sb.WriteString("\n## Candidates\n")

	n := len(results)
	if n > maxCandidatesShown {
		n = maxCandidatesShown
	}
	for i := 0; i < n; i++ {
		r := results[i]
		sb.WriteString(fmt.Sprintf("[%d] %s (%s)\n", i, r.Title, r.URL))
		sb.WriteString(fmt.Sprintf("    purpose: %s\n", r.Purpose))
		sb.WriteString(fmt.Sprintf("    %s\n", util.TruncateString(r.Snippet, 240, true)))
	}
	return sb.String()
}
