// Package chat runs the user actions of a session: code entry, reference
// upload, chat turns and export.
//
// Engine holds the pure operations. Each takes the current session and
// returns the next one without touching its input; on error the returned
// session is the input itself. Service adds loading, locking and saving.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sparkmindlabs/edugenie/internal/conversation"
	"github.com/sparkmindlabs/edugenie/internal/domain"
	"github.com/sparkmindlabs/edugenie/internal/export"
	"github.com/sparkmindlabs/edugenie/internal/extract"
	"github.com/sparkmindlabs/edugenie/internal/gate"
	"github.com/sparkmindlabs/edugenie/internal/llm"
)

// ReferenceExtractor turns an upload into reference text.
type ReferenceExtractor interface {
	Extract(ctx context.Context, u extract.Upload) (extract.Reference, error)
}

// Engine implements the session actions.
type Engine struct {
	gate         *gate.Gate
	completer    llm.Completer
	extractor    ReferenceExtractor
	systemPrompt string
	logger       *slog.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithSystemPrompt overrides conversation.SystemPrompt.
func WithSystemPrompt(prompt string) EngineOption {
	return func(e *Engine) { e.systemPrompt = prompt }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine.
func NewEngine(g *gate.Gate, completer llm.Completer, extractor ReferenceExtractor, opts ...EngineOption) *Engine {
	e := &Engine{
		gate:         g,
		completer:    completer,
		extractor:    extractor,
		systemPrompt: conversation.SystemPrompt,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Gate returns the access gate.
func (e *Engine) Gate() *gate.Gate {
	return e.gate
}

// SubmitCode checks an access code exactly as typed.
func (e *Engine) SubmitCode(s *domain.Session, code string) (*domain.Session, gate.Decision) {
	next, decision := e.gate.Verify(s, code)
	e.logger.Info("Access code checked",
		"session_id", s.ID,
		"outcome", decision.Outcome,
		"remaining", decision.Remaining,
	)
	return next, decision
}

// AttachReference extracts u and makes it the session's reference, replacing
// any previous one. The text is merged into the next chat turn.
func (e *Engine) AttachReference(ctx context.Context, s *domain.Session, u extract.Upload) (*domain.Session, extract.Reference, error) {
	if err := gate.Require(s); err != nil {
		return s, extract.Reference{}, err
	}
	if e.extractor == nil {
		return s, extract.Reference{}, domain.ExtractionError(domain.CodeExtractFailed,
			"Reference uploads are not available on this server.", errors.New("no extractor configured"))
	}

	ref, err := e.extractor.Extract(ctx, u)
	if err != nil {
		return s, extract.Reference{}, err
	}
	return conversation.ReplaceReference(s, ref.Name, ref.Text), ref, nil
}

// Reply is the outcome of one completed chat turn.
type Reply struct {
	Content string
	// ReferenceMerged is true when the pending reference rode along with
	// this turn's user message.
	ReferenceMerged bool
}

// SendMessage appends a user turn, asks the model for a reply and appends it.
func (e *Engine) SendMessage(ctx context.Context, s *domain.Session, text string) (*domain.Session, Reply, error) {
	if err := gate.Require(s); err != nil {
		return s, Reply{}, err
	}
	if strings.TrimSpace(text) == "" {
		return s, Reply{}, domain.InvalidError("Please type a message first.")
	}

	next, merged := conversation.AddUserTurn(s, text)
	content, err := e.completer.Complete(ctx, conversation.BuildRequest(e.systemPrompt, next.Transcript))
	if err != nil {
		e.logger.Warn("Completion failed", "session_id", s.ID, "turns", len(next.Transcript), "error", err)
		return s, Reply{}, completionError(err)
	}

	next.Transcript = conversation.Append(next.Transcript, domain.RoleAssistant, content)
	return next, Reply{Content: content, ReferenceMerged: merged}, nil
}

// Export renders the last assistant reply. The session is never changed.
func (e *Engine) Export(s *domain.Session, f export.Format) (export.Document, error) {
	if err := gate.Require(s); err != nil {
		return export.Document{}, err
	}
	last, ok := s.LastReply()
	if !ok {
		return export.Document{}, domain.ExportError(domain.CodeNothingToExport,
			"There is no assistant reply to download yet.", nil)
	}
	return export.Render(last.Content, f)
}

func completionError(err error) error {
	switch {
	case errors.Is(err, llm.ErrTimeout):
		return domain.CompletionError(domain.CodeTimeout,
			"The assistant took too long to answer. Please try again.", err)
	case errors.Is(err, llm.ErrEmptyResponse):
		return domain.CompletionError(domain.CodeEmptyCompletion,
			"The assistant returned an empty answer. Please try again.", err)
	case errors.Is(err, llm.ErrRateLimited):
		return domain.CompletionError(domain.CodeCompletionFailed,
			"The assistant is busy right now. Please wait a moment and try again.", err)
	default:
		return domain.CompletionError(domain.CodeCompletionFailed,
			"The assistant could not answer right now. Please try again.", err)
	}
}
