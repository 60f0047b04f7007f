// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Reasoning field normalization for backends that name it differently

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithTools sends a chat completion request with tool definitions.
	// The LLM may respond with tool calls in LLMResponse.ToolCalls.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)

	// StreamChat streams a chat completion, sending chunks to the provided channel.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}

// DeltaFunc receives incremental text and reasoning while a response streams.
// Either argument may be empty.
type DeltaFunc func(text, reasoning string)

// ToolStreamer is implemented by providers that can stream a response while
// tools are offered. The returned response holds the assembled text,
// reasoning and tool calls.
type ToolStreamer interface {
	StreamWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, onDelta DeltaFunc) (LLMResponse, error)
}
