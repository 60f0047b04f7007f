// Package event defines the events produced while a turn runs.
//
// Event is a sealed interface: the unexported marker method keeps the set
// of variants closed, so every consumer can switch over them exhaustively.
// New kinds of gateway output are added as new variants here.
package event

import "encoding/json"

// Event is one unit of output emitted during a turn.
type Event interface {
	event()
}

// Reasoning is a reasoning fragment ("thinking") from a source agent.
type Reasoning struct {
	Text   string
	Source string
}

func (Reasoning) event() {}

// TextDelta is a partial chunk of model text for incremental display.
type TextDelta struct {
	Text string
}

func (TextDelta) event() {}

// ToolCallRequest asks for one tool invocation.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

func (ToolCallRequest) event() {}

// ToolCallResult carries the outcome of one tool invocation.
// Text is the JSON envelope returned by the tool, or an error message.
type ToolCallResult struct {
	CallID  string
	Name    string
	Text    string
	IsError bool
}

func (ToolCallResult) event() {}

// ToolSummary is the coarse form of a round of tool activity: the same
// requests and results as the fine-grained events, plus a text rendering.
type ToolSummary struct {
	Text    string
	Source  string
	Calls   []ToolCallRequest
	Results []ToolCallResult
}

func (ToolSummary) event() {}

// FinalText is complete natural-language text from a source agent.
type FinalText struct {
	Text   string
	Source string
}

func (FinalText) event() {}

// TurnComplete is the terminal envelope carrying every event of the turn.
type TurnComplete struct {
	Events []Event
}

func (TurnComplete) event() {}

// Interface compliance checks.
var (
	_ Event = Reasoning{}
	_ Event = TextDelta{}
	_ Event = ToolCallRequest{}
	_ Event = ToolCallResult{}
	_ Event = ToolSummary{}
	_ Event = FinalText{}
	_ Event = TurnComplete{}
)

// Text returns the human-readable text an event carries, if any.
func Text(e Event) string {
	switch v := e.(type) {
	case Reasoning:
		return v.Text
	case TextDelta:
		return v.Text
	case ToolCallResult:
		return v.Text
	case ToolSummary:
		return v.Text
	case FinalText:
		return v.Text
	default:
		return ""
	}
}

// Source returns the declared source of an event, or "" when the
// variant has none.
func Source(e Event) string {
	switch v := e.(type) {
	case Reasoning:
		return v.Source
	case ToolSummary:
		return v.Source
	case FinalText:
		return v.Source
	default:
		return ""
	}
}
