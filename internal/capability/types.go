// Package capability holds thin clients for the external services the
// drafting workflow consumes: AI generation, web search, and URL fetch.
// The core depends only on these contracts, never on a concrete vendor.
package capability

import (
	"context"
	"encoding/json"
	"time"
)

// Message is a single chat message sent to the AI capability.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// GenerationOptions tune a single AI call.
type GenerationOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	// ForceTool asks the backend to answer via the named tool call.
	ForceTool string `json:"force_tool,omitempty"`
}

// GenerationRequest is one AI generation call.
type GenerationRequest struct {
	Purpose      string            `json:"purpose"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Messages     []Message         `json:"messages"`
	Options      GenerationOptions `json:"options"`
}

// ToolCall is a structured answer from the AI capability. Arguments are
// opaque JSON; callers parse locally and must tolerate malformed output.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// GenerationResponse is the AI capability's answer.
type GenerationResponse struct {
	Success    bool       `json:"success"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Error      string     `json:"error,omitempty"`
	TokensUsed int        `json:"tokens_used,omitempty"`
	ModelUsed  string     `json:"model_used,omitempty"`
}

// AIClient is the AI generation capability contract.
type AIClient interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
}

// SearchOptions tune a single search call.
type SearchOptions struct {
	MaxResults int    `json:"max_results"`
	Language   string `json:"language,omitempty"`
	Category   string `json:"category,omitempty"`
}

// SearchResultItem is one raw search hit.
type SearchResultItem struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchResponse is the search capability's answer.
type SearchResponse struct {
	Success bool               `json:"success"`
	Results []SearchResultItem `json:"results"`
}

// SearchClient is the web-search capability contract.
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error)
}

// FetchOptions tune a single URL fetch.
type FetchOptions struct {
	Timeout          time.Duration
	MaxContentLength int
}

// FetchResult is the outcome of fetching one URL.
type FetchResult struct {
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
}

// FetchClient is the URL-content capability contract.
type FetchClient interface {
	FetchURL(ctx context.Context, url string, opts FetchOptions) (*FetchResult, error)
}
