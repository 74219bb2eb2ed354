// Package llm talks to the chat completion endpoint.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResponse is returned when the endpoint answers without content.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("llm: request timed out")
	// ErrUnauthorized is returned for rejected credentials.
	ErrUnauthorized = errors.New("llm: unauthorized")
	// ErrRateLimited is returned when the provider throttles or the quota is spent.
	ErrRateLimited = errors.New("llm: rate limited")
)

// Message is one entry of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer returns the single top reply for an ordered list of messages.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// VisionExtractor describes an image using a vision-capable model.
type VisionExtractor interface {
	ExtractImage(ctx context.Context, prompt, mimeType string, data []byte) (string, error)
}
