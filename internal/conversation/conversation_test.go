package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

func TestAppendDoesNotAlias(t *testing.T) {
	base := make([]domain.Turn, 1, 4)
	base[0] = domain.Turn{Role: domain.RoleUser, Content: "one"}

	a := Append(base, domain.RoleAssistant, "two")
	b := Append(base, domain.RoleAssistant, "other")

	assert.Equal(t, "two", a[1].Content)
	assert.Equal(t, "other", b[1].Content)
	assert.Len(t, base, 1)
}

func TestEffectiveContentWithoutReference(t *testing.T) {
	assert.Equal(t, "make a worksheet", EffectiveContent("make a worksheet", ""))
	assert.Equal(t, "make a worksheet", EffectiveContent("make a worksheet", " \n"))
}

func TestEffectiveContentWithReference(t *testing.T) {
	got := EffectiveContent("make a worksheet", "Q1: 2+2=?")

	assert.Equal(t, "make a worksheet\n\n"+ReferenceHeader+"\nQ1: 2+2=?", got)
	userAt := strings.Index(got, "make a worksheet")
	headerAt := strings.Index(got, ReferenceHeader)
	refAt := strings.Index(got, "Q1: 2+2=?")
	assert.True(t, userAt < headerAt && headerAt < refAt)
}

func TestAddUserTurnMergesOnce(t *testing.T) {
	s := domain.NewSession("s", "u", time.Now())
	s = ReplaceReference(s, "quiz.pdf", "Q1: 2+2=?")
	require.True(t, s.ReferencePending)

	first, merged := AddUserTurn(s, "make a worksheet")
	assert.True(t, merged)
	second, merged := AddUserTurn(first, "add two more questions")
	assert.False(t, merged)

	require.Len(t, second.Transcript, 2)
	assert.Contains(t, second.Transcript[0].Content, "Q1: 2+2=?")
	assert.Equal(t, "add two more questions", second.Transcript[1].Content)
	assert.False(t, second.ReferencePending)
	assert.Equal(t, "Q1: 2+2=?", second.ReferenceText)
	assert.Empty(t, s.Transcript, "input session must not change")
}

func TestReplaceReferenceReplaces(t *testing.T) {
	s := domain.NewSession("s", "u", time.Now())
	s = ReplaceReference(s, "a.pdf", "first text")
	s = ReplaceReference(s, "b.png", "second text")

	s, _ = AddUserTurn(s, "go")

	assert.Equal(t, "b.png", s.ReferenceName)
	assert.NotContains(t, s.Transcript[0].Content, "first text")
	assert.Contains(t, s.Transcript[0].Content, "second text")
}

func TestReplaceReferenceEmptyTextIsNotPending(t *testing.T) {
	s := ReplaceReference(domain.NewSession("s", "u", time.Now()), "scan.pdf", "")
	assert.False(t, s.ReferencePending)

	s, merged := AddUserTurn(s, "hello")
	assert.False(t, merged)
	assert.Equal(t, "hello", s.Transcript[0].Content)
}

func TestBuildRequest(t *testing.T) {
	transcript := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleUser, Content: "quiz please"},
	}

	msgs := BuildRequest(SystemPrompt, transcript)

	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	for i, turn := range transcript {
		assert.Equal(t, string(turn.Role), msgs[i+1].Role)
		assert.Equal(t, turn.Content, msgs[i+1].Content)
	}
}
