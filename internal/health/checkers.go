package health

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
)

// RedisHealthChecker checks Redis connectivity
type RedisHealthChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	timeout time.Duration
}

// NewRedisHealthChecker creates a Redis health checker
func NewRedisHealthChecker(wrapper *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisHealthChecker {
	return &RedisHealthChecker{
		wrapper: wrapper,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (r *RedisHealthChecker) Name() string     { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool { return true }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	startTime := time.Now()
	result := CheckResult{
		Component: "redis",
		Critical:  true,
	}

	// Check circuit breaker state
	if r.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		result.Duration = time.Since(startTime)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.wrapper.Ping(ctx).Err()
	result.Duration = time.Since(startTime)

	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		return result
	}

	// Check if degraded (high latency)
	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{
		"latency_ms": result.Duration.Milliseconds(),
	}
	return result
}

// CapabilityHealthChecker probes an HTTP capability's health endpoint. The
// research phases degrade gracefully, so capability checks are non-critical.
type CapabilityHealthChecker struct {
	name    string
	url     string
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewCapabilityHealthChecker creates a checker for one capability service.
func NewCapabilityHealthChecker(name, baseURL string, logger *zap.Logger) *CapabilityHealthChecker {
	return &CapabilityHealthChecker{
		name:    name,
		url:     baseURL + "/health",
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (c *CapabilityHealthChecker) Name() string     { return c.name }
func (c *CapabilityHealthChecker) IsCritical() bool { return false }

func (c *CapabilityHealthChecker) Check(ctx context.Context) CheckResult {
	startTime := time.Now()
	result := CheckResult{
		Component: c.name,
		Critical:  false,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Duration = time.Since(startTime)
		return result
	}

	resp, err := c.client.Do(req)
	result.Duration = time.Since(startTime)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "capability unreachable"
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		result.Status = StatusUnhealthy
		result.Message = resp.Status
		return result
	}
	if resp.StatusCode >= 400 {
		result.Status = StatusDegraded
		result.Message = resp.Status
		return result
	}

	result.Status = StatusHealthy
	result.Message = "capability healthy"
	return result
}
