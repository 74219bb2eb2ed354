// Package gate implements the attempt-limited shared access code check that
// guards every other action in a session.
package gate

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

// DefaultMaxAttempts is the attempt budget per session.
const DefaultMaxAttempts = 3

// Messages shown to the user for each outcome.
const (
	MessageAllowed   = "Access verified! How can I help you today?"
	MessageDenied    = "The access code you entered is invalid."
	MessageLastDeny  = "The access code you entered is invalid. Please contact SparkMind Labs to request access."
	MessageExhausted = "Access denied. Please reach out to SparkMind Labs to obtain a valid access code."
)

// Outcome is the result class of a verification.
type Outcome string

const (
	Allowed   Outcome = "allowed"
	Denied    Outcome = "denied"
	Exhausted Outcome = "exhausted"
)

// Decision is the result of Verify. Remaining is only meaningful for Denied.
type Decision struct {
	Outcome   Outcome `json:"outcome"`
	Remaining int     `json:"remaining"`
}

// Message returns the user-facing text for d.
func (d Decision) Message() string {
	switch d.Outcome {
	case Allowed:
		return MessageAllowed
	case Exhausted:
		return MessageExhausted
	default:
		if d.Remaining == 0 {
			return MessageLastDeny
		}
		return fmt.Sprintf("%s Attempts remaining: %d", MessageDenied, d.Remaining)
	}
}

// Err converts a non-allowing decision to an auth error.
func (d Decision) Err() error {
	switch d.Outcome {
	case Allowed:
		return nil
	case Exhausted:
		return domain.AuthError(domain.CodeAccessExhausted, MessageExhausted)
	default:
		return domain.AuthError(domain.CodeAccessDenied, d.Message())
	}
}

// Gate compares submitted codes against a fixed secret.
type Gate struct {
	secret      string
	maxAttempts int
}

// New creates a gate. maxAttempts <= 0 uses DefaultMaxAttempts.
func New(secret string, maxAttempts int) (*Gate, error) {
	if secret == "" {
		return nil, errors.New("gate: access code must not be empty")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Gate{secret: secret, maxAttempts: maxAttempts}, nil
}

// MaxAttempts returns the attempt budget.
func (g *Gate) MaxAttempts() int {
	return g.maxAttempts
}

// Verify evaluates code for s and returns the updated session and decision.
// s itself is never modified.
func (g *Gate) Verify(s *domain.Session, code string) (*domain.Session, Decision) {
	if s.Authenticated {
		return s, Decision{Outcome: Allowed}
	}
	if g.IsExhausted(s) {
		return s, Decision{Outcome: Exhausted}
	}

	next := s.Clone()
	if subtle.ConstantTimeCompare([]byte(code), []byte(g.secret)) == 1 {
		next.Authenticated = true
		return next, Decision{Outcome: Allowed}
	}

	next.Attempts++
	return next, Decision{Outcome: Denied, Remaining: g.maxAttempts - next.Attempts}
}

// IsExhausted reports whether s has no attempts left and is not authenticated.
func (g *Gate) IsExhausted(s *domain.Session) bool {
	return !s.Authenticated && s.Attempts >= g.maxAttempts
}

// Status describes the gate state of s without consuming an attempt.
func (g *Gate) Status(s *domain.Session) Decision {
	switch {
	case s.Authenticated:
		return Decision{Outcome: Allowed}
	case g.IsExhausted(s):
		return Decision{Outcome: Exhausted}
	default:
		return Decision{Outcome: Denied, Remaining: g.maxAttempts - s.Attempts}
	}
}

// Require returns an auth error unless s is authenticated.
func Require(s *domain.Session) error {
	if s == nil || !s.Authenticated {
		return domain.AuthError(domain.CodeNotAuthenticated, "Please enter your EduGenie access code first.")
	}
	return nil
}
