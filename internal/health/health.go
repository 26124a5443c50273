// Package health runs component health checks for readiness reporting.
package health

import (
	"context"
	"time"
)

// CheckStatus represents the result of a health check
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON reports the textual status.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// CheckResult contains the result of a health check
type CheckResult struct {
	Component string                 `json:"component"`
	Status    CheckStatus            `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Critical  bool                   `json:"critical"`
}

// Checker defines the interface for health checks
type Checker interface {
	// Name returns the unique name of this health check
	Name() string

	// Check performs the health check and returns the result
	Check(ctx context.Context) CheckResult

	// IsCritical returns true if this check's failure should mark the
	// service as unhealthy
	IsCritical() bool
}

// Report is the aggregate of one health pass.
type Report struct {
	Status     CheckStatus            `json:"status"`
	Ready      bool                   `json:"ready"`
	Timestamp  time.Time              `json:"timestamp"`
	Components map[string]CheckResult `json:"components"`
}

// Run executes every checker and aggregates the outcome. A failing critical
// check makes the service unhealthy and not ready; non-critical failures
// degrade it.
func Run(ctx context.Context, checkers []Checker) Report {
	report := Report{
		Status:     StatusHealthy,
		Ready:      true,
		Timestamp:  time.Now(),
		Components: make(map[string]CheckResult, len(checkers)),
	}

	for _, c := range checkers {
		res := c.Check(ctx)
		report.Components[c.Name()] = res

		switch res.Status {
		case StatusUnhealthy:
			if c.IsCritical() {
				report.Status = StatusUnhealthy
				report.Ready = false
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}
