package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/metrics"
)

// End is the terminal routing sentinel.
const End = "__end__"

var (
	// ErrInvalidResumeState is returned when Resume targets a thread whose
	// checkpoint is not awaiting external input.
	ErrInvalidResumeState = errors.New("thread is not awaiting input")
	// ErrResumeConflict is returned when a second resume races an in-flight
	// one on the same thread. First writer wins; the loser must not retry
	// blindly.
	ErrResumeConflict = errors.New("another resume is in flight for this thread")
)

// Suspension signals that a step wants to halt the thread pending external
// input. It is an ordinary return value, not a panic or error.
type Suspension struct {
	Payload map[string]interface{}
}

// NodeResult is what a step returns: a partial state patch and an optional
// suspension request.
type NodeResult struct {
	Patch   Patch
	Suspend *Suspension
}

// NodeFunc is a single workflow step. It receives a state snapshot and must
// not mutate it; all effects flow through the returned patch.
type NodeFunc func(ctx context.Context, s State) (NodeResult, error)

// Router maps the current state to the name of the next step.
type Router func(s State) string

// Graph is a directed graph of named steps.
type Graph struct {
	entry string
	nodes map[string]NodeFunc
	edges map[string]Router
}

// NewGraph creates a graph entered at the named step.
func NewGraph(entry string) *Graph {
	return &Graph{
		entry: entry,
		nodes: make(map[string]NodeFunc),
		edges: make(map[string]Router),
	}
}

// AddNode registers a step.
func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	g.nodes[name] = fn
	return g
}

// AddEdge declares a static successor for a step. Use End to terminate.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = func(State) string { return to }
	return g
}

// AddRouter declares a state-dependent successor for a step.
func (g *Graph) AddRouter(from string, r Router) *Graph {
	g.edges[from] = r
	return g
}

// Validate checks that the entry exists and every edge source and static
// target refers to a registered step.
func (g *Graph) Validate() error {
	if _, ok := g.nodes[g.entry]; !ok {
		return fmt.Errorf("entry step %q is not registered", g.entry)
	}
	for from := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge source %q is not registered", from)
		}
	}
	for name := range g.nodes {
		if _, ok := g.edges[name]; !ok {
			return fmt.Errorf("step %q has no successor; add an edge to %s to terminate", name, End)
		}
	}
	return nil
}

func (g *Graph) next(from string, s State) (string, error) {
	router, ok := g.edges[from]
	if !ok {
		return "", fmt.Errorf("step %q has no successor", from)
	}
	next := router(s)
	if next == End {
		return End, nil
	}
	if _, ok := g.nodes[next]; !ok {
		return "", fmt.Errorf("router of %q selected unknown step %q", from, next)
	}
	return next, nil
}

// RunStatus tags the outcome of Invoke or Resume.
type RunStatus string

const (
	RunSuspended RunStatus = "suspended"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunResult is the caller-visible outcome of driving a thread.
type RunResult struct {
	Status     RunStatus
	Payload    map[string]interface{} // set when suspended
	FinalState State                  // set when completed
	Err        error                  // set when failed
}

// Engine drives a graph over checkpointed threads. The engine never runs two
// steps of the same thread concurrently; within a step, nodes are free to fan
// out their own I/O.
type Engine struct {
	graph  *Graph
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine creates an engine for a validated graph.
func NewEngine(graph *Graph, store Store, logger *zap.Logger) (*Engine, error) {
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}
	return &Engine{
		graph:    graph,
		store:    store,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}, nil
}

// acquire marks a thread as having an in-flight run. It fails instead of
// blocking: concurrent drivers of one thread are a protocol violation.
func (e *Engine) acquire(threadID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[threadID]; busy {
		return false
	}
	e.inFlight[threadID] = struct{}{}
	return true
}

func (e *Engine) release(threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, threadID)
}

// Invoke starts a new thread from the graph entry with the given initial
// state and drives it until completion, suspension, or failure.
func (e *Engine) Invoke(ctx context.Context, threadID string, initial State) RunResult {
	if !e.acquire(threadID) {
		metrics.ResumeConflicts.Inc()
		return RunResult{Status: RunFailed, Err: ErrResumeConflict}
	}
	defer e.release(threadID)

	state, err := NormalizeState(initial)
	if err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}
	return e.run(ctx, threadID, state, e.graph.entry)
}

// Resume continues a suspended thread. The checkpoint must be tagged
// awaiting; the supplied patch (for example the user's answers) is merged
// before execution continues at the step after the one that suspended.
func (e *Engine) Resume(ctx context.Context, threadID string, patch Patch) RunResult {
	if !e.acquire(threadID) {
		metrics.ResumeConflicts.Inc()
		return RunResult{Status: RunFailed, Err: ErrResumeConflict}
	}
	defer e.release(threadID)

	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}
	if cp.Status != StatusAwaiting || cp.Pending == nil {
		return RunResult{Status: RunFailed,
			Err: fmt.Errorf("%w: thread %s is %s", ErrInvalidResumeState, threadID, cp.Status)}
	}

	state := cp.State
	if len(patch) > 0 {
		state, err = Apply(state, patch)
		if err != nil {
			return RunResult{Status: RunFailed, Err: err}
		}
	}

	next, err := e.graph.next(cp.Pending.Step, state)
	if err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}

	// Clear the pending interrupt before executing anything, so a crash
	// mid-resume cannot make the same suspension consumable twice.
	cleared := &Checkpoint{
		ThreadID: threadID,
		State:    state,
		Step:     cp.Pending.Step,
		Status:   StatusRunning,
	}
	if err := e.store.Save(ctx, cleared); err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}

	metrics.WorkflowsResumed.Inc()
	e.logger.Info("Workflow resumed",
		zap.String("thread_id", threadID),
		zap.String("suspended_at", cp.Pending.Step),
		zap.String("continuing_at", next),
	)
	if next == End {
		return e.finish(ctx, threadID, state, cleared.Step)
	}
	return e.run(ctx, threadID, state, next)
}

// run drives the thread step-by-step, persisting a checkpoint after every
// transition, until End, a suspension, or a failure.
func (e *Engine) run(ctx context.Context, threadID string, state State, step string) RunResult {
	for step != End {
		node := e.graph.nodes[step]

		start := time.Now()
		res, err := node(ctx, state.Clone())
		metrics.RecordStep(step, time.Since(start).Seconds(), err)

		if err != nil {
			return e.fail(ctx, threadID, state, step, err)
		}

		if len(res.Patch) > 0 {
			state, err = Apply(state, res.Patch)
			if err != nil {
				return e.fail(ctx, threadID, state, step, err)
			}
		}

		if res.Suspend != nil {
			cp := &Checkpoint{
				ThreadID: threadID,
				State:    state,
				Step:     step,
				Status:   StatusAwaiting,
				Pending: &Interrupt{
					Step:      step,
					Payload:   res.Suspend.Payload,
					CreatedAt: time.Now(),
				},
			}
			if err := e.store.Save(ctx, cp); err != nil {
				return RunResult{Status: RunFailed, Err: err}
			}
			metrics.WorkflowsSuspended.Inc()
			e.logger.Info("Workflow suspended",
				zap.String("thread_id", threadID),
				zap.String("step", step),
			)
			return RunResult{Status: RunSuspended, Payload: res.Suspend.Payload}
		}

		next, err := e.graph.next(step, state)
		if err != nil {
			return e.fail(ctx, threadID, state, step, err)
		}

		cp := &Checkpoint{ThreadID: threadID, State: state, Step: step, Status: StatusRunning}
		if err := e.store.Save(ctx, cp); err != nil {
			return RunResult{Status: RunFailed, Err: err}
		}

		step = next
	}

	return e.finish(ctx, threadID, state, step)
}

func (e *Engine) finish(ctx context.Context, threadID string, state State, lastStep string) RunResult {
	cp := &Checkpoint{ThreadID: threadID, State: state, Step: lastStep, Status: StatusCompleted}
	if err := e.store.Save(ctx, cp); err != nil {
		return RunResult{Status: RunFailed, Err: err}
	}
	e.logger.Info("Workflow completed", zap.String("thread_id", threadID))
	return RunResult{Status: RunCompleted, FinalState: state}
}

// fail transitions the thread to its terminal error state. The failed step's
// error message is attached to the state so the terminal checkpoint is
// self-describing.
func (e *Engine) fail(ctx context.Context, threadID string, state State, step string, cause error) RunResult {
	errored, applyErr := Apply(state, Patch{FieldError: cause.Error()})
	if applyErr != nil {
		errored = state
	}
	cp := &Checkpoint{ThreadID: threadID, State: errored, Step: step, Status: StatusError}
	if saveErr := e.store.Save(ctx, cp); saveErr != nil {
		e.logger.Error("Failed to persist error checkpoint",
			zap.String("thread_id", threadID),
			zap.Error(saveErr),
		)
	}
	e.logger.Error("Workflow failed",
		zap.String("thread_id", threadID),
		zap.String("step", step),
		zap.Error(cause),
	)
	return RunResult{Status: RunFailed, Err: cause}
}
