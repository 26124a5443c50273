package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
	"github.com/fraktionswerk/draftflow/internal/metrics"
)

// HTTPSearchClient calls a web-search service over HTTP JSON.
type HTTPSearchClient struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewHTTPSearchClient creates a search capability client.
func NewHTTPSearchClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSearchClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return &HTTPSearchClient{
		baseURL: baseURL,
		http:    circuitbreaker.NewHTTPWrapper(client, "search-service", logger),
		logger:  logger,
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Language   string `json:"language,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Search runs one query. Callers treat any error as "this query returned
// nothing"; a failed query never fails the batch.
func (c *HTTPSearchClient) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	body, err := json.Marshal(searchRequest{
		Query:      query,
		MaxResults: opts.MaxResults,
		Language:   opts.Language,
		Category:   opts.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordCapabilityCall("search", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("search service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordCapabilityCall("search", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("search service returned HTTP %d", resp.StatusCode)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		metrics.RecordCapabilityCall("search", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	metrics.RecordCapabilityCall("search", "ok", time.Since(start).Seconds())
	return &searchResp, nil
}
