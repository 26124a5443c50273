package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Recorder{
		db:     sqlx.NewDb(db, "sqlmock"),
		logger: zap.NewNop(),
	}, mock
}

func TestNewRecorderWithoutDSN(t *testing.T) {
	r, err := NewRecorder("", zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NoError(t, r.Record(context.Background(), Entry{SessionID: "sess-1"}))
	assert.NoError(t, r.Close())
}

func TestRecordInsertsEntry(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectExec("INSERT INTO draft_audit").
		WithArgs("sess-1", "user-1", "antrag", "Radwege", "completed",
			1, 4200, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := r.Record(context.Background(), Entry{
		SessionID:     "sess-1",
		UserID:        "user-1",
		RequestType:   "antrag",
		Topic:         "Radwege",
		Status:        "completed",
		AnswerRounds:  1,
		DocumentChars: 4200,
		FinishedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSetsFinishedAt(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectExec("INSERT INTO draft_audit").
		WithArgs("sess-2", "user-1", "anfrage", "Schulweg", "error",
			0, 0, "final generation rejected", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := r.Record(context.Background(), Entry{
		SessionID:    "sess-2",
		UserID:       "user-1",
		RequestType:  "anfrage",
		Topic:        "Schulweg",
		Status:       "error",
		ErrorMessage: "final generation rejected",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
