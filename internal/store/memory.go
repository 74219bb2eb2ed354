package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

// MemoryStore is a thread-safe in-memory Repository. Stored sessions are
// cloned on the way in and out so callers never share transcript storage.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*SQLiteStore)(nil)
)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

func (m *MemoryStore) CreateSession(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("insert session: %s already exists", session.ID)
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemoryStore) SaveSession(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) ListExpiredSessions(_ context.Context, ttl time.Duration) ([]SessionKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	threshold := time.Now().Add(-ttl)
	var keys []SessionKey
	for _, s := range m.sessions {
		if s.UpdatedAt.Before(threshold) {
			keys = append(keys, SessionKey{ID: s.ID, UserID: s.UserID})
		}
	}
	return keys, nil
}

func (m *MemoryStore) PurgeSessions(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.sessions))
	m.sessions = make(map[string]*domain.Session)
	return n, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }
