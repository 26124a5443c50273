// Package session manages drafting sessions in Redis with a local cache.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
	"github.com/fraktionswerk/draftflow/internal/metrics"
)

// Manager handles session management with Redis backend
type Manager struct {
	client      *circuitbreaker.RedisWrapper
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Session  // Local cache for performance
	cacheAccess map[string]time.Time // Track last access time for LRU
	maxSessions int
}

// NewManager creates a new session manager on top of an existing Redis client.
func NewManager(client *circuitbreaker.RedisWrapper, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         ttl,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000, // Max sessions to keep in local cache
	}
}

// Create creates a new session for the given user. An empty sessionID is
// rejected; callers generate IDs so that HTTP responses and checkpoint
// thread IDs stay aligned.
func (m *Manager) Create(ctx context.Context, userID, sessionID, topic, requestType, locale string) (*Session, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("user id and session id are required")
	}

	// Reject reuse of a live session ID by a different user.
	if existing, err := m.Get(ctx, userID, sessionID); err == nil && existing != nil {
		return nil, fmt.Errorf("session %s already exists", sessionID)
	}

	now := time.Now()
	session := &Session{
		ID:          sessionID,
		UserID:      userID,
		State:       StateInitiated,
		Topic:       topic,
		RequestType: requestType,
		Locale:      locale,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
		Metadata:    make(map[string]interface{}),
	}

	if err := m.save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[m.cacheKey(userID, sessionID)] = session
	m.cacheAccess[m.cacheKey(userID, sessionID)] = now
	m.cleanupLocalCache()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Created new session",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("request_type", requestType),
	)
	metrics.SessionsCreated.Inc()

	return session, nil
}

// Get retrieves a session by (userID, sessionID).
func (m *Manager) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	cacheKey := m.cacheKey(userID, sessionID)

	// Check local cache first
	m.mu.RLock()
	if session, ok := m.localCache[cacheKey]; ok {
		m.mu.RUnlock()
		metrics.SessionCacheHits.Inc()
		if session.IsExpired() {
			m.Delete(ctx, userID, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[cacheKey] = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.RUnlock()
	metrics.SessionCacheMisses.Inc()

	// Load from Redis
	data, err := m.client.Get(ctx, m.redisKey(userID, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.IsExpired() {
		m.Delete(ctx, userID, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[cacheKey] = &session
	m.cacheAccess[cacheKey] = time.Now()
	m.cleanupLocalCache()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	return &session, nil
}

// Update persists a modified session.
func (m *Manager) Update(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	session.UpdatedAt = time.Now()

	if err := m.save(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[m.cacheKey(session.UserID, session.ID)] = session
	m.mu.Unlock()

	return nil
}

// TransitionTo loads the session, applies a state transition, and saves it.
func (m *Manager) TransitionTo(ctx context.Context, userID, sessionID string, to State) (*Session, error) {
	session, err := m.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Transition(to); err != nil {
		return nil, fmt.Errorf("session %s: %s -> %s: %w", sessionID, session.State, to, err)
	}
	if err := m.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete deletes a session
func (m *Manager) Delete(ctx context.Context, userID, sessionID string) error {
	if err := m.client.Del(ctx, m.redisKey(userID, sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, m.cacheKey(userID, sessionID))
	delete(m.cacheAccess, m.cacheKey(userID, sessionID))
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

// ListByUser returns all live sessions of one user, newest first is not
// guaranteed; callers sort if they care.
func (m *Manager) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	keys, err := m.client.Keys(ctx, fmt.Sprintf("session:%s:*", userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*Session
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue // Skip failed sessions
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		if !session.IsExpired() {
			sessions = append(sessions, &session)
		}
	}

	return sessions, nil
}

// CleanupExpired removes sessions whose expiry passed before their Redis TTL
// fired, for example after a TTL was shortened.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.client.Keys(ctx, "session:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}

		if session.IsExpired() {
			if err := m.client.Del(ctx, key).Err(); err == nil {
				m.mu.Lock()
				delete(m.localCache, m.cacheKey(session.UserID, session.ID))
				delete(m.cacheAccess, m.cacheKey(session.UserID, session.ID))
				m.mu.Unlock()
				cleaned++
			}
		}
	}

	m.logger.Info("Cleaned up expired sessions", zap.Int("count", cleaned))
	return cleaned, nil
}

func (m *Manager) redisKey(userID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", userID, sessionID)
}

func (m *Manager) cacheKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

func (m *Manager) save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}

	return m.client.Set(ctx, m.redisKey(session.UserID, session.ID), data, ttl).Err()
}

func (m *Manager) cleanupLocalCache() {
	// Remove oldest entries if cache is too large using LRU
	if len(m.localCache) <= m.maxSessions {
		return
	}

	type accessEntry struct {
		key  string
		time time.Time
	}

	entries := make([]accessEntry, 0, len(m.localCache))
	for key := range m.localCache {
		accessTime, exists := m.cacheAccess[key]
		if !exists {
			// If no access time tracked, consider it very old
			accessTime = time.Time{}
		}
		entries = append(entries, accessEntry{key: key, time: accessTime})
	}

	// Sort by access time (oldest first)
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	// Remove the oldest half
	toRemove := m.maxSessions / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].key)
		delete(m.cacheAccess, entries[i].key)
		metrics.SessionCacheEvictions.Inc()
	}
}

// RedisWrapper returns the underlying Redis circuit breaker wrapper for
// health checks.
func (m *Manager) RedisWrapper() *circuitbreaker.RedisWrapper {
	return m.client
}

// Close closes the session manager
func (m *Manager) Close() error {
	return m.client.Close()
}
