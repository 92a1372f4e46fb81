package service

import (
	"context"
)

// QuoteGenerator is the interface for generative model providers
type QuoteGenerator interface {
	// NewConversation opens a stateful chat primed with the system instruction
	NewConversation(systemInstruction string) Conversation

	// Name identifies the provider in logs and metrics
	Name() string

	// IsEnabled returns whether the provider is configured and ready
	IsEnabled() bool
}

// Conversation is a chat that remembers earlier exchanges
type Conversation interface {
	// Send delivers a prompt and returns the raw model answer. A failed call
	// leaves the conversation history unchanged.
	Send(ctx context.Context, prompt string) (string, error)
}

// StreamingConversation is implemented by conversations that can surface
// partial output while the answer is generated
type StreamingConversation interface {
	Conversation

	// SendStream works like Send; the callback receives (thinkingContent, regularContent) for each chunk
	SendStream(ctx context.Context, prompt string, callback func(thinking, content string) error) (string, error)
}

// ForkableConversation is implemented by conversations that can branch their
// history. A turn runs on a fork, and the fork replaces the session's
// conversation only when the turn commits.
type ForkableConversation interface {
	Conversation

	// Fork returns an independent copy sharing the provider and history
	Fork() Conversation
}

// forkConversation branches conv when it supports forking and returns conv
// itself otherwise
func forkConversation(conv Conversation) Conversation {
	if f, ok := conv.(ForkableConversation); ok {
		return f.Fork()
	}
	return conv
}

// StreamChunk represents a generic streaming response chunk
type StreamChunk struct {
	// Regular content (always present in streaming)
	Content string

	// Thinking/reasoning content (provider-specific, e.g., DeepSeek)
	ThinkingContent string

	// Role (assistant, user, system)
	Role string

	// Whether this is the final chunk
	Done bool
}

// Ensure providers implement QuoteGenerator
var (
	_ QuoteGenerator        = (*OpenAIGenerator)(nil)
	_ QuoteGenerator        = (*GigaChatGenerator)(nil)
	_ StreamingConversation = (*openAIConversation)(nil)
	_ ForkableConversation  = (*openAIConversation)(nil)
	_ ForkableConversation  = (*gigaChatConversation)(nil)
)
