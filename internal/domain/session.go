package domain

import (
	"time"
)

// Role tags a transcript turn.
type Role string

const (
	// RoleUser marks a turn written by the teacher.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem only appears on outbound completion requests, never in a transcript.
	RoleSystem Role = "system"
)

// Valid reports whether r may be stored in a transcript.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message of the conversation. Turns are immutable once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session holds the gate state, transcript and reference text for one
// client connection.
type Session struct {
	ID            string
	UserID        string
	Authenticated bool
	Attempts      int
	Transcript    []Turn

	// ReferenceText is the text extracted from the last upload. It is replaced,
	// never merged, by the next upload.
	ReferenceText string
	ReferenceName string
	// ReferencePending is true until ReferenceText has been merged into a user turn.
	ReferencePending bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession returns an unauthenticated session with an empty transcript.
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy whose transcript does not share backing storage with s.
func (s *Session) Clone() *Session {
	out := *s
	if s.Transcript != nil {
		out.Transcript = make([]Turn, len(s.Transcript))
		copy(out.Transcript, s.Transcript)
	}
	return &out
}

// LastReply returns the most recent assistant turn.
func (s *Session) LastReply() (Turn, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i], true
		}
	}
	return Turn{}, false
}
