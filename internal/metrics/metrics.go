package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_workflows_started_total",
			Help: "Total number of drafting workflows started",
		},
		[]string{"request_type"},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_workflows_completed_total",
			Help: "Total number of drafting workflows that reached a terminal state",
		},
		[]string{"request_type", "status"},
	)

	WorkflowsSuspended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_workflows_suspended_total",
			Help: "Total number of workflow suspensions awaiting user input",
		},
	)

	WorkflowsResumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_workflows_resumed_total",
			Help: "Total number of workflow resumptions",
		},
	)

	ResumeConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_resume_conflicts_total",
			Help: "Total number of concurrent resume attempts rejected with a conflict",
		},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftflow_step_duration_seconds",
			Help:    "Workflow step execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	StepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_step_errors_total",
			Help: "Total number of workflow step errors",
		},
		[]string{"step"},
	)

	// Checkpoint metrics
	CheckpointSaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_checkpoint_saves_total",
			Help: "Total number of checkpoint writes",
		},
	)

	CheckpointLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_checkpoint_loads_total",
			Help: "Total number of checkpoint reads",
		},
		[]string{"status"},
	)

	// Planner metrics
	SearchQueriesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_search_queries_total",
			Help: "Total number of search queries executed",
		},
		[]string{"purpose", "status"},
	)

	SearchResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "draftflow_search_results_returned",
			Help:    "Number of deduplicated results per planning round",
			Buckets: []float64{0, 5, 10, 20, 40, 80},
		},
	)

	CrawlFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_crawl_fetches_total",
			Help: "Total number of deep-crawl fetches",
		},
		[]string{"status"},
	)

	// Clarification metrics
	QuestionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_question_fallbacks_total",
			Help: "Total number of times the static question catalog was used",
		},
		[]string{"request_type"},
	)

	// Capability metrics
	CapabilityCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftflow_capability_calls_total",
			Help: "Total number of external capability calls",
		},
		[]string{"capability", "status"},
	)

	CapabilityLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftflow_capability_latency_seconds",
			Help:    "External capability call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_sessions_created_total",
			Help: "Total number of drafting sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_session_cache_hits_total",
			Help: "Total number of session cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_session_cache_misses_total",
			Help: "Total number of session cache misses",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftflow_session_cache_size",
			Help: "Current number of sessions in the local cache",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftflow_session_cache_evictions_total",
			Help: "Total number of sessions evicted from the local cache",
		},
	)
)

// RecordCapabilityCall records outcome and latency of an external capability call.
func RecordCapabilityCall(capability, status string, durationSeconds float64) {
	CapabilityCalls.WithLabelValues(capability, status).Inc()
	if durationSeconds > 0 {
		CapabilityLatency.WithLabelValues(capability).Observe(durationSeconds)
	}
}

// RecordStep records duration and outcome for a single workflow step.
func RecordStep(step string, durationSeconds float64, err error) {
	StepDuration.WithLabelValues(step).Observe(durationSeconds)
	if err != nil {
		StepErrors.WithLabelValues(step).Inc()
	}
}
