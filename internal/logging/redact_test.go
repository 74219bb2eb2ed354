package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactValue(t *testing.T) {
	assert.Equal(t, "", RedactValue("  "))
	assert.Equal(t, "****", RedactValue("8124"))
	assert.Equal(t, "****wxyz", RedactValue("sk-abcdefghwxyz"))
	assert.Equal(t, "Bearer ****wxyz", RedactValue("Bearer sk-abcdefghwxyz"))
}

func TestRedactAny(t *testing.T) {
	in := map[string]any{
		"type": "submit_code",
		"code": "8124",
		"nested": []any{
			map[string]any{"api_key": "sk-secret", "model": "gpt"},
		},
	}

	out := RedactAny(in).(map[string]any)

	assert.Equal(t, "submit_code", out["type"])
	assert.Equal(t, "****", out["code"])
	nested := out["nested"].([]any)[0].(map[string]any)
	assert.Equal(t, "****", nested["api_key"])
	assert.Equal(t, "gpt", nested["model"])
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, IsSecretKey(" Authorization "))
	assert.True(t, IsSecretKey("OPENAI_API_KEY"))
	assert.False(t, IsSecretKey("content"))
}
