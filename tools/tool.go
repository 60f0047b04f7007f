// Package tools provides the tool system for the assistant.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Argument schemas derived from typed argument structs
// - Registry implementation details hidden from consumers
// - Error handling internalized per tool
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolMetadata describes what a tool does and how to call it.
type ToolMetadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Envelope is the structured result every tool returns.
// A failed envelope carries Error and nothing else is required.
type Envelope struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON encodes the envelope. Encoding failures collapse into a failed
// envelope so callers always get valid JSON.
func (e Envelope) JSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		b, _ = json.Marshal(Envelope{Tool: e.Tool, Error: fmt.Sprintf("encode result: %v", err)})
	}
	return string(b)
}

// Succeed builds a successful envelope.
func Succeed(tool, message string, data any) Envelope {
	return Envelope{Tool: tool, Success: true, Message: message, Data: data}
}

// Fail builds a failed envelope.
func Fail(tool, format string, args ...any) Envelope {
	return Envelope{Tool: tool, Error: fmt.Sprintf(format, args...)}
}

// Tool is the interface that all tools must implement.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameter schema).
	Metadata() ToolMetadata

	// Execute runs the tool with given arguments. A returned error means
	// the tool itself broke; business failures are failed envelopes.
	Execute(ctx context.Context, args json.RawMessage) (Envelope, error)

	// Validate validates arguments before execution.
	Validate(args json.RawMessage) error
}

// ToolConfig holds tool execution configuration.
// The zero value is safe: timeout defaults to 30s and a single attempt.
type ToolConfig struct {
	TimeoutSecs uint64
	MaxRetries  uint32
}

// Timeout returns the configured timeout, defaulting to 30 seconds if zero.
func (c *ToolConfig) Timeout() uint64 {
	if c == nil || c.TimeoutSecs == 0 {
		return 30
	}
	return c.TimeoutSecs
}

// Attempts returns how many times a broken tool is tried, at least once.
func (c *ToolConfig) Attempts() uint32 {
	if c == nil || c.MaxRetries == 0 {
		return 1
	}
	return c.MaxRetries
}

// DefaultToolConfig returns the default tool configuration.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{TimeoutSecs: 30, MaxRetries: 1}
}
