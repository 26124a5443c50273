// Package service is the public entry point of the drafting workflow: it
// validates requests, owns the session state machine, and drives the
// checkpointed workflow engine underneath.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/assembly"
	"github.com/fraktionswerk/draftflow/internal/audit"
	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/clarify"
	"github.com/fraktionswerk/draftflow/internal/config"
	"github.com/fraktionswerk/draftflow/internal/enricher"
	"github.com/fraktionswerk/draftflow/internal/metrics"
	"github.com/fraktionswerk/draftflow/internal/planner"
	"github.com/fraktionswerk/draftflow/internal/session"
	"github.com/fraktionswerk/draftflow/internal/workflow"
)

var (
	// ErrInvalidRequest is returned for requests that fail validation before
	// any state is touched.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionFinished is returned when a caller submits answers to a
	// session that already reached a terminal state.
	ErrSessionFinished = errors.New("session already finished")
)

var validRequestTypes = map[string]bool{
	"antrag":           true,
	"anfrage":          true,
	"rede":             true,
	"pressemitteilung": true,
}

// Service drives drafting sessions end to end.
type Service struct {
	engine   *workflow.Engine
	store    workflow.Store
	sessions *session.Manager
	auditor  *audit.Recorder
	logger   *zap.Logger
}

// Deps are the collaborators the service is built from.
type Deps struct {
	AI       capability.AIClient
	Search   capability.SearchClient
	Fetch    capability.FetchClient
	Sessions *session.Manager
	Store    workflow.Store
	Catalog  *clarify.Catalog
	Auditor  *audit.Recorder
	Limits   config.LimitsConfig
	Logger   *zap.Logger
}

// New assembles the phase engines, wires the workflow graph, and returns a
// ready service.
func New(d Deps) (*Service, error) {
	n := &nodes{
		planner: planner.New(d.AI, d.Search, planner.Config{
			MaxQueries:         d.Limits.MaxQueries,
			MaxResults:         d.Limits.MaxResults,
			MaxResultsPerQuery: d.Limits.MaxResultsPerQry,
			Language:           "de",
		}, d.Logger),
		enricher: enricher.New(d.Fetch, enricher.Config{
			FetchTimeout:     d.Limits.FetchTimeout,
			MaxContentLength: d.Limits.MaxContentLength,
		}, d.Logger),
		clarify: clarify.New(d.AI, d.Catalog, clarify.Config{
			MinQuestions: d.Limits.MinQuestions,
			MaxQuestions: d.Limits.MaxQuestions,
		}, d.Logger),
		assembler: assembly.New(d.AI, d.Logger),
		limits:    d.Limits,
		logger:    d.Logger,
	}

	engine, err := workflow.NewEngine(buildGraph(n), d.Store, d.Logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		engine:   engine,
		store:    d.Store,
		sessions: d.Sessions,
		auditor:  d.Auditor,
		logger:   d.Logger,
	}, nil
}

// InitiateInput starts a new drafting session.
type InitiateInput struct {
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id,omitempty"`
	Topic       string `json:"topic"`
	Details     string `json:"details,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// ContinueInput submits one round of answers to a suspended session.
type ContinueInput struct {
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id"`
	Answers   map[string]string `json:"answers"`
}

// Result is the caller-visible outcome of Initiate or Continue.
type Result struct {
	SessionID string                 `json:"session_id"`
	Status    session.State          `json:"status"`
	Round     int                    `json:"round,omitempty"`
	Questions []clarify.Question     `json:"questions,omitempty"`
	Document  string                 `json:"document,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func resultMetadata(sess *session.Session) map[string]interface{} {
	return map[string]interface{}{
		"topic":        sess.Topic,
		"request_type": sess.RequestType,
		"locale":       sess.Locale,
	}
}

func (in *InitiateInput) validate() error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if in.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if in.RequestType == "" {
		in.RequestType = "antrag"
	}
	if !validRequestTypes[in.RequestType] {
		return fmt.Errorf("%w: unknown request_type %q", ErrInvalidRequest, in.RequestType)
	}
	if in.Locale == "" {
		in.Locale = "de-DE"
	}
	if in.SessionID == "" {
		in.SessionID = uuid.New().String()
	}
	return nil
}

// Initiate starts a new session and drives the workflow until it suspends
// with clarifying questions, completes, or fails.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create(ctx, in.UserID, in.SessionID, in.Topic, in.RequestType, in.Locale)
	if err != nil {
		return nil, err
	}
	metrics.WorkflowsStarted.WithLabelValues(in.RequestType).Inc()

	res := s.engine.Invoke(ctx, sess.ID, workflow.State{
		workflow.FieldSessionID:   sess.ID,
		workflow.FieldUserID:      in.UserID,
		workflow.FieldTopic:       in.Topic,
		workflow.FieldDetails:     in.Details,
		workflow.FieldRequestType: in.RequestType,
		workflow.FieldLocale:      in.Locale,
	})
	return s.mapOutcome(ctx, sess, res)
}

// Continue resumes a suspended session with the user's answers. The answers
// become one accumulated round; the engine re-asks or proceeds to generation.
func (s *Service) Continue(ctx context.Context, in ContinueInput) (*Result, error) {
	if in.UserID == "" || in.SessionID == "" {
		return nil, fmt.Errorf("%w: user_id and session_id are required", ErrInvalidRequest)
	}

	sess, err := s.sessions.Get(ctx, in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.State.IsTerminal() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionFinished, sess.ID, sess.State)
	}
	if sess.State != session.StateQuestionsAsked {
		return nil, fmt.Errorf("%w: session %s is %s", workflow.ErrInvalidResumeState, sess.ID, sess.State)
	}

	sess, err = s.sessions.TransitionTo(ctx, in.UserID, in.SessionID, session.StateAnswersReceived)
	if err != nil {
		return nil, err
	}
	sess.AnswerRounds++
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	res := s.engine.Resume(ctx, sess.ID, workflow.Patch{
		workflow.FieldAnswerRounds: []clarify.AnswerSet{in.Answers},
	})
	return s.mapOutcome(ctx, sess, res)
}

// StatusResult describes a session without advancing it.
type StatusResult struct {
	Session   *session.Session   `json:"session"`
	Questions []clarify.Question `json:"questions,omitempty"`
	Document  string             `json:"document,omitempty"`
}

// Status reports the current session state, the pending questions when the
// workflow is suspended, and the document when it completed.
func (s *Service) Status(ctx context.Context, userID, sessionID string) (*StatusResult, error) {
	sess, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	out := &StatusResult{Session: sess}
	cp, err := s.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, workflow.ErrThreadNotFound) {
			return out, nil
		}
		return nil, err
	}

	switch cp.Status {
	case workflow.StatusAwaiting:
		if cp.Pending != nil {
			out.Questions = decodeQuestions(cp.Pending.Payload)
		}
	case workflow.StatusCompleted:
		out.Document = cp.State.GetString(workflow.FieldFinalResult)
	}
	return out, nil
}

// List returns all live sessions of one user.
func (s *Service) List(ctx context.Context, userID string) ([]*session.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return s.sessions.ListByUser(ctx, userID)
}

// mapOutcome translates an engine run result into session transitions and a
// caller-visible result.
func (s *Service) mapOutcome(ctx context.Context, sess *session.Session, res workflow.RunResult) (*Result, error) {
	switch res.Status {
	case workflow.RunSuspended:
		if err := s.advanceToAsked(ctx, sess); err != nil {
			return nil, err
		}
		round, _ := res.Payload["round"].(int)
		if round == 0 {
			round = sess.AnswerRounds + 1
		}
		return &Result{
			SessionID: sess.ID,
			Status:    session.StateQuestionsAsked,
			Round:     round,
			Questions: decodeQuestions(res.Payload),
			Metadata:  resultMetadata(sess),
		}, nil

	case workflow.RunCompleted:
		if _, err := s.sessions.TransitionTo(ctx, sess.UserID, sess.ID, session.StateGenerating); err != nil {
			return nil, err
		}
		if _, err := s.sessions.TransitionTo(ctx, sess.UserID, sess.ID, session.StateCompleted); err != nil {
			return nil, err
		}
		document := res.FinalState.GetString(workflow.FieldFinalResult)
		metrics.WorkflowsCompleted.WithLabelValues(sess.RequestType, "completed").Inc()
		s.recordOutcome(ctx, sess, string(session.StateCompleted), len(document), "")
		return &Result{
			SessionID: sess.ID,
			Status:    session.StateCompleted,
			Document:  document,
			Metadata:  resultMetadata(sess),
		}, nil

	default:
		if _, err := s.sessions.TransitionTo(ctx, sess.UserID, sess.ID, session.StateError); err != nil {
			s.logger.Warn("Failed to mark session errored",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
		}
		metrics.WorkflowsCompleted.WithLabelValues(sess.RequestType, "error").Inc()
		s.recordOutcome(ctx, sess, string(session.StateError), 0, res.Err.Error())
		return nil, res.Err
	}
}

// advanceToAsked moves a session through questions_generated to
// questions_asked, from either a fresh start or a repeat round.
func (s *Service) advanceToAsked(ctx context.Context, sess *session.Session) error {
	if sess.State == session.StateInitiated {
		if _, err := s.sessions.TransitionTo(ctx, sess.UserID, sess.ID, session.StateQuestionsGenerated); err != nil {
			return err
		}
	}
	_, err := s.sessions.TransitionTo(ctx, sess.UserID, sess.ID, session.StateQuestionsAsked)
	return err
}

func (s *Service) recordOutcome(ctx context.Context, sess *session.Session, status string, docChars int, errMsg string) {
	err := s.auditor.Record(ctx, audit.Entry{
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		RequestType:   sess.RequestType,
		Topic:         sess.Topic,
		Status:        status,
		AnswerRounds:  sess.AnswerRounds,
		DocumentChars: docChars,
		ErrorMessage:  errMsg,
	})
	if err != nil {
		s.logger.Warn("Audit record failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}

// decodeQuestions extracts the question list from a suspension payload. The
// payload may hold live typed values (same process) or plain JSON values
// (after a checkpoint round trip); a JSON re-encode handles both.
func decodeQuestions(payload map[string]interface{}) []clarify.Question {
	raw, ok := payload["questions"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var questions []clarify.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil
	}
	return questions
}
