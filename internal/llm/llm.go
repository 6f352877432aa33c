// Package llm provides the language-model capability contract and its Ollama
// implementation.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationConfig holds generation parameters. Zero values mean
// model defaults.
type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Generator produces text from a role-tagged message sequence. Chat returns
// the full completion; ChatStream delivers fragments to fn as they arrive and
// stops early if fn returns an error or ctx is cancelled. A stream is finite
// per call and not restartable once consumed.
type Generator interface {
	Chat(ctx context.Context, messages []Message, cfg GenerationConfig) (string, error)
	ChatStream(ctx context.Context, messages []Message, cfg GenerationConfig, fn func(fragment string) error) error
	Close() error
}
