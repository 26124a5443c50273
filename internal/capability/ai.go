package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
	"github.com/fraktionswerk/draftflow/internal/metrics"
)

// HTTPAIClient calls an AI generation service over HTTP JSON. Requests pass
// through a client-side rate limiter and a circuit breaker.
type HTTPAIClient struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPAIClient creates an AI capability client.
func NewHTTPAIClient(baseURL string, timeout time.Duration, rps float64, burst int, logger *zap.Logger) *HTTPAIClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = int(rps) + 1
	}
	client := &http.Client{Timeout: timeout}
	return &HTTPAIClient{
		baseURL: baseURL,
		http:    circuitbreaker.NewHTTPWrapper(client, "ai-service", logger),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Generate issues one generation call. A non-2xx status or transport error is
// returned as an error; the caller decides whether it is recoverable.
func (c *HTTPAIClient) Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Purpose", req.Purpose)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordCapabilityCall("ai", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("ai service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordCapabilityCall("ai", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("ai service returned HTTP %d", resp.StatusCode)
	}

	var genResp GenerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		metrics.RecordCapabilityCall("ai", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode generation response: %w", err)
	}

	metrics.RecordCapabilityCall("ai", "ok", time.Since(start).Seconds())
	c.logger.Debug("AI generation call completed",
		zap.String("purpose", req.Purpose),
		zap.Bool("success", genResp.Success),
		zap.Int("tool_calls", len(genResp.ToolCalls)),
		zap.Int("tokens_used", genResp.TokensUsed),
	)
	return &genResp, nil
}
