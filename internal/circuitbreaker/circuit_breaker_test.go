package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

func TestCircuitBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", testConfig(), zap.NewNop())
	failing := errors.New("backend down")

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return failing })
		require.ErrorIs(t, err, failing)
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", testConfig(), zap.NewNop())
	failing := errors.New("backend down")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}
	require.Equal(t, StateOpen, cb.State())

	// Wait past the open timeout so the next request probes half-open
	time.Sleep(60 * time.Millisecond)

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func() error { return nil })
		require.NoError(t, err)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", testConfig(), zap.NewNop())
	failing := errors.New("backend down")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}
	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error { return failing })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerClosedSuccessResetsConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", testConfig(), zap.NewNop())
	failing := errors.New("backend down")

	_ = cb.Execute(context.Background(), func() error { return failing })
	_ = cb.Execute(context.Background(), func() error { return failing })
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	_ = cb.Execute(context.Background(), func() error { return failing })
	_ = cb.Execute(context.Background(), func() error { return failing })

	// Never three consecutive failures, so the breaker stays closed
	assert.Equal(t, StateClosed, cb.State())
}
