// Package conversation composes transcripts and outbound completion requests.
//
// Reference text is merged once: the first user turn after an upload stores
// the merged content, and later turns are stored bare. Replaying the stored
// transcript therefore always shows the model the reference exactly where it
// was introduced.
package conversation

import (
	"strings"

	"github.com/sparkmindlabs/edugenie/internal/domain"
	"github.com/sparkmindlabs/edugenie/internal/llm"
)

// Append returns a new transcript with one more turn. The input slice is
// never written to.
func Append(transcript []domain.Turn, role domain.Role, content string) []domain.Turn {
	out := make([]domain.Turn, len(transcript), len(transcript)+1)
	copy(out, transcript)
	return append(out, domain.Turn{Role: role, Content: content})
}

// EffectiveContent returns userText with referenceText appended under
// ReferenceHeader, or userText alone when there is no reference.
func EffectiveContent(userText, referenceText string) string {
	if strings.TrimSpace(referenceText) == "" {
		return userText
	}
	var b strings.Builder
	b.Grow(len(userText) + len(ReferenceHeader) + len(referenceText) + 3)
	b.WriteString(userText)
	b.WriteString("\n\n")
	b.WriteString(ReferenceHeader)
	b.WriteString("\n")
	b.WriteString(referenceText)
	return b.String()
}

// AddUserTurn merges a pending reference into userText, appends the result
// and marks the reference as consumed. It reports whether a reference was
// merged. s is not modified.
func AddUserTurn(s *domain.Session, userText string) (*domain.Session, bool) {
	next := s.Clone()
	content := userText
	merged := false
	if next.ReferencePending {
		content = EffectiveContent(userText, next.ReferenceText)
		next.ReferencePending = false
		merged = content != userText
	}
	next.Transcript = Append(next.Transcript, domain.RoleUser, content)
	return next, merged
}

// ReplaceReference attaches new reference text, discarding any previous one.
func ReplaceReference(s *domain.Session, name, text string) *domain.Session {
	next := s.Clone()
	next.ReferenceName = name
	next.ReferenceText = text
	next.ReferencePending = strings.TrimSpace(text) != ""
	return next
}

// BuildRequest puts the system prompt first, then the transcript in order.
func BuildRequest(systemPrompt string, transcript []domain.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(transcript)+1)
	msgs = append(msgs, llm.Message{Role: string(domain.RoleSystem), Content: systemPrompt})
	for _, t := range transcript {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}
