// Package model provides domain types shared across packages.
package model

import "encoding/json"

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is one message of a session's conversation.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Thought is a reasoning fragment captured during a turn.
type Thought struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// ToolCallStatus tracks the lifecycle of a single tool invocation.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallError     ToolCallStatus = "error"
)

// ToolCallRecord accumulates what is known about one tool call, keyed by ID.
// Result is empty while Status is pending.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Status    ToolCallStatus  `json:"status"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error"`
}

// TurnResult is what a completed (or failed) turn hands back to the transport.
type TurnResult struct {
	Content   string           `json:"content"`
	Thoughts  []Thought        `json:"thoughts"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
}

// NewTurnResult returns a result whose slices encode as [] rather than null.
func NewTurnResult(content string, thoughts []Thought, calls []ToolCallRecord) TurnResult {
	if thoughts == nil {
		thoughts = []Thought{}
	}
	if calls == nil {
		calls = []ToolCallRecord{}
	}
	return TurnResult{Content: content, Thoughts: thoughts, ToolCalls: calls}
}
