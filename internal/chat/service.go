package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sparkmindlabs/edugenie/internal/domain"
	"github.com/sparkmindlabs/edugenie/internal/export"
	"github.com/sparkmindlabs/edugenie/internal/extract"
	"github.com/sparkmindlabs/edugenie/internal/gate"
	"github.com/sparkmindlabs/edugenie/internal/store"
)

var (
	// ErrTurnInProgress is returned when another action on the same session
	// has not finished.
	ErrTurnInProgress = errors.New("another action is still running for this session")
	// ErrUnknownSession is returned for a missing, expired or foreign session.
	ErrUnknownSession = errors.New("session not found")
)

// LiveSessions reports whether a session still has an open connection.
type LiveSessions interface {
	IsLive(userID, sessionID string) bool
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLiveSessions makes Sweep keep sessions whose connection is still open,
// however long they have been idle.
func WithLiveSessions(live LiveSessions) ServiceOption {
	return func(s *Service) { s.live = live }
}

// Service loads a session, runs one engine operation on it and saves the
// result only when the operation succeeded.
type Service struct {
	repo   store.Repository
	engine *Engine
	live   LiveSessions
	locks  sync.Map // sessionID -> *sync.Mutex, only for sessions that exist
	now    func() time.Time
}

// NewService creates a Service.
func NewService(repo store.Repository, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Open creates a fresh session for userID.
func (s *Service) Open(ctx context.Context, userID string) (*domain.Session, error) {
	sess := domain.NewSession(uuid.NewString(), userID, s.now().UTC())
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("Chat session opened", "user_id", userID, "session_id", sess.ID)
	return sess, nil
}

// Close discards a session and its lock.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.locks.Delete(sessionID)
	slog.Info("Chat session closed", "session_id", sessionID)
	return nil
}

// Get returns a snapshot of a session owned by userID.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil || sess.UserID != userID {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// SubmitCode checks an access code against the session's gate state.
func (s *Service) SubmitCode(ctx context.Context, userID, sessionID, code string) (gate.Decision, error) {
	var decision gate.Decision
	err := s.withSession(ctx, userID, sessionID, func(cur *domain.Session) (*domain.Session, error) {
		var next *domain.Session
		next, decision = s.engine.SubmitCode(cur, code)
		return next, nil
	})
	return decision, err
}

// AttachReference extracts an upload into the session's reference.
func (s *Service) AttachReference(ctx context.Context, userID, sessionID string, u extract.Upload) (extract.Reference, error) {
	var ref extract.Reference
	err := s.withSession(ctx, userID, sessionID, func(cur *domain.Session) (*domain.Session, error) {
		next, r, err := s.engine.AttachReference(ctx, cur, u)
		ref = r
		return next, err
	})
	return ref, err
}

// SendMessage runs one chat turn and returns the assistant reply.
func (s *Service) SendMessage(ctx context.Context, userID, sessionID, text string) (Reply, *domain.Session, error) {
	var (
		reply Reply
		saved *domain.Session
	)
	err := s.withSession(ctx, userID, sessionID, func(cur *domain.Session) (*domain.Session, error) {
		next, r, err := s.engine.SendMessage(ctx, cur, text)
		reply, saved = r, next
		return next, err
	})
	if err != nil {
		return Reply{}, nil, err
	}
	return reply, saved, nil
}

// Export renders the last reply. It reads a snapshot and takes no lock.
func (s *Service) Export(ctx context.Context, userID, sessionID string, f export.Format) (export.Document, error) {
	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return export.Document{}, err
	}
	return s.engine.Export(sess, f)
}

// Sweep removes sessions idle for longer than ttl whose connection is gone.
func (s *Service) Sweep(ctx context.Context, ttl time.Duration) (int64, error) {
	expired, err := s.repo.ListExpiredSessions(ctx, ttl)
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	var deleted int64
	for _, k := range expired {
		if s.live != nil && s.live.IsLive(k.UserID, k.ID) {
			continue
		}
		if err := s.repo.DeleteSession(ctx, k.ID); err != nil {
			return deleted, fmt.Errorf("delete expired session: %w", err)
		}
		s.locks.Delete(k.ID)
		deleted++
	}
	return deleted, nil
}

func (s *Service) withSession(ctx context.Context, userID, sessionID string, fn func(*domain.Session) (*domain.Session, error)) error {
	// Resolve first so unknown IDs never allocate a lock.
	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return err
	}

	lock := s.lockFor(sessionID)
	if !lock.TryLock() {
		return ErrTurnInProgress
	}
	defer lock.Unlock()

	cur, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, ErrUnknownSession) {
			s.locks.Delete(sessionID)
		}
		return err
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil || next == cur {
		return nil
	}

	next.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveSession(ctx, next); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			s.locks.Delete(sessionID)
			return ErrUnknownSession
		}
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Service) lockFor(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
