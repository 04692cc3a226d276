package ai

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("ai: empty completion")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the full history and the generation budget.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Provider is the base interface for all completion providers
type Provider interface {
	// Complete returns the assistant text for the given history
	Complete(ctx context.Context, req *CompletionRequest) (string, error)

	// IsAvailable checks if the provider is available/configured
	IsAvailable() bool

	// Name returns the provider name
	Name() string
}

// SummarizeRequest represents a call summarization request
type SummarizeRequest struct {
	CallSID    string
	Language   string
	Transcript []Message
}

// SummarizeResponse represents a call summarization response
type SummarizeResponse struct {
	Summary  string `json:"summary"`
	Provider string `json:"provider"`
}
