// Package audit records terminal workflow outcomes in Postgres. Recording is
// optional: without a configured DSN no recorder is created and callers skip
// it.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Entry is one terminal workflow outcome.
type Entry struct {
	SessionID     string    `db:"session_id"`
	UserID        string    `db:"user_id"`
	RequestType   string    `db:"request_type"`
	Topic         string    `db:"topic"`
	Status        string    `db:"status"`
	AnswerRounds  int       `db:"answer_rounds"`
	DocumentChars int       `db:"document_chars"`
	ErrorMessage  string    `db:"error_message"`
	FinishedAt    time.Time `db:"finished_at"`
}

// Recorder writes audit entries. A nil Recorder is valid and records nothing.
type Recorder struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRecorder connects to Postgres. An empty DSN disables auditing and
// returns a nil recorder without error.
func NewRecorder(dsn string, logger *zap.Logger) (*Recorder, error) {
	if dsn == "" {
		logger.Info("Audit recording disabled, no DSN configured")
		return nil, nil
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	return &Recorder{db: db, logger: logger}, nil
}

const insertEntry = `
	INSERT INTO draft_audit (
		session_id, user_id, request_type, topic, status,
		answer_rounds, document_chars, error_message, finished_at
	) VALUES (
		:session_id, :user_id, :request_type, :topic, :status,
		:answer_rounds, :document_chars, :error_message, :finished_at
	)`

// Record persists one entry. Safe to call on a nil recorder.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r == nil {
		return nil
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}

	if _, err := r.db.NamedExecContext(ctx, insertEntry, e); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	r.logger.Debug("Recorded audit entry",
		zap.String("session_id", e.SessionID),
		zap.String("status", e.Status),
	)
	return nil
}

// Close closes the database connection. Safe to call on a nil recorder.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.db.Close()
}
