// Package store provides session persistence interfaces and implementations.
//
// Sessions live only as long as their connection; the repository exists so
// that every action loads a consistent snapshot and commits the next one in a
// single write.
package store

import (
	"context"
	"time"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

// SessionKey identifies a stored session and its owner.
type SessionKey struct {
	ID     string
	UserID string
}

// Repository defines the interface for storing live sessions.
type Repository interface {
	// CreateSession inserts a new session. It fails if the ID exists.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID. It returns nil, nil if not found.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// SaveSession replaces the stored state of an existing session.
	SaveSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// ListExpiredSessions returns sessions not updated within ttl. Nothing is
	// deleted; the caller decides which of them are really abandoned.
	ListExpiredSessions(ctx context.Context, ttl time.Duration) ([]SessionKey, error)

	// PurgeSessions removes every session. Called at startup.
	PurgeSessions(ctx context.Context) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
