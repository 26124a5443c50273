package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
)

type staticChecker struct {
	name     string
	status   CheckStatus
	critical bool
}

func (c staticChecker) Name() string     { return c.name }
func (c staticChecker) IsCritical() bool { return c.critical }
func (c staticChecker) Check(context.Context) CheckResult {
	return CheckResult{Component: c.name, Status: c.status, Critical: c.critical}
}

func TestRunAggregation(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus CheckStatus
		wantReady  bool
	}{
		{
			name: "all healthy",
			checkers: []Checker{
				staticChecker{name: "a", status: StatusHealthy, critical: true},
				staticChecker{name: "b", status: StatusHealthy},
			},
			wantStatus: StatusHealthy,
			wantReady:  true,
		},
		{
			name: "critical failure",
			checkers: []Checker{
				staticChecker{name: "redis", status: StatusUnhealthy, critical: true},
			},
			wantStatus: StatusUnhealthy,
			wantReady:  false,
		},
		{
			name: "non-critical failure degrades",
			checkers: []Checker{
				staticChecker{name: "redis", status: StatusHealthy, critical: true},
				staticChecker{name: "search", status: StatusUnhealthy},
			},
			wantStatus: StatusDegraded,
			wantReady:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Run(context.Background(), tt.checkers)
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantReady, report.Ready)
			assert.Len(t, report.Components, len(tt.checkers))
		})
	}
}

func TestRedisHealthChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, zap.NewNop())

	checker := NewRedisHealthChecker(wrapper, zap.NewNop())
	res := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	mr.Close()
	res = checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
}

func TestCapabilityHealthChecker(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	checker := NewCapabilityHealthChecker("ai", healthy.URL, zap.NewNop())
	res := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.False(t, checker.IsCritical())

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	checker = NewCapabilityHealthChecker("search", broken.URL, zap.NewNop())
	res = checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
}
