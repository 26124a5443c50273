package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
	"github.com/fraktionswerk/draftflow/internal/metrics"
)

// Status tags a checkpoint's position in the thread lifecycle.
type Status string

const (
	StatusRunning   Status = "running"
	StatusAwaiting  Status = "awaiting_input"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Interrupt records a pending suspension awaiting external input.
type Interrupt struct {
	Step      string                 `json:"step"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Checkpoint is the persisted snapshot of a thread: its state, the last
// completed step, and any pending interrupt. A thread has exactly one current
// checkpoint; saves overwrite.
type Checkpoint struct {
	ThreadID  string     `json:"thread_id"`
	State     State      `json:"state"`
	Step      string     `json:"step"`
	Status    Status     `json:"status"`
	Pending   *Interrupt `json:"pending_interrupt,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

var (
	// ErrThreadNotFound is returned when no checkpoint exists for a thread,
	// including checkpoints lost to TTL expiry.
	ErrThreadNotFound = errors.New("workflow thread not found")
)

// Store persists checkpoints keyed by thread ID.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
}

// RedisStore persists checkpoints in Redis with a TTL. TTL expiry is
// indistinguishable from deletion: both surface as ErrThreadNotFound.
type RedisStore struct {
	client *circuitbreaker.RedisWrapper
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(client *circuitbreaker.RedisWrapper, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func checkpointKey(threadID string) string {
	return fmt.Sprintf("checkpoint:%s", threadID)
}

// Save overwrites the current checkpoint for cp.ThreadID.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, checkpointKey(cp.ThreadID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	metrics.CheckpointSaves.Inc()
	s.logger.Debug("Checkpoint saved",
		zap.String("thread_id", cp.ThreadID),
		zap.String("step", cp.Step),
		zap.String("status", string(cp.Status)),
	)
	return nil
}

// Load returns the current checkpoint for a thread.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, checkpointKey(threadID)).Bytes()
	if err == redis.Nil {
		metrics.CheckpointLoads.WithLabelValues("miss").Inc()
		return nil, ErrThreadNotFound
	} else if err != nil {
		metrics.CheckpointLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		metrics.CheckpointLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	metrics.CheckpointLoads.WithLabelValues("hit").Inc()
	return &cp, nil
}

// Delete removes the checkpoint for a thread.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, checkpointKey(threadID)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
