package server

import (
	"encoding/json"

	"github.com/richinex/tablecopilot/event"
	"github.com/richinex/tablecopilot/model"
	"github.com/richinex/tablecopilot/notifier"
)

// Client → server message types.
const (
	TypeMessage      = "message"
	TypeClearHistory = "clear_history"
	TypePing         = "ping"
)

// Server → client frame types.
const (
	FrameConnection   = "connection"
	FrameStatus       = "status"
	FrameThought      = "thought"
	FrameLLMChunk     = "llm_chunk"
	FrameToolCall     = "tool_call"
	FrameResponse     = "response"
	FrameError        = "error"
	FramePong         = "pong"
	FrameNotification = "notification"
)

// Tool call phases carried by tool_call frames.
const (
	PhaseRequest = "request"
	PhaseResult  = "result"
	PhaseSummary = "summary"
)

// ClientMessage is the envelope sent by clients. A missing type means
// "message"; a missing session id means the connection's own identity.
type ClientMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Frame is every server → client message except response.
type Frame struct {
	Type       string         `json:"type"`
	Status     string         `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`
	Category   string         `json:"category,omitempty"`
	Content    string         `json:"content,omitempty"`
	Source     string         `json:"source,omitempty"`
	Final      bool           `json:"final,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	ToolCall   *ToolCallFrame `json:"tool_call,omitempty"`
	Title      string         `json:"title,omitempty"`
	ScheduleID string         `json:"schedule_id,omitempty"`
}

// ToolCallFrame describes one side of a tool invocation.
type ToolCallFrame struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ResponseFrame is the single terminal frame of a turn.
type ResponseFrame struct {
	Type string `json:"type"`
	model.TurnResult
	SessionID string `json:"session_id"`
}

// Incoming is what clients decode: the union of every frame's fields.
type Incoming struct {
	Frame
	Thoughts  []model.Thought        `json:"thoughts,omitempty"`
	ToolCalls []model.ToolCallRecord `json:"tool_calls,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// EventFrame maps a turn event to its live frame. TurnComplete has none.
func EventFrame(e event.Event) (Frame, bool) {
	category := event.Channel(e)
	switch v := e.(type) {
	case event.Reasoning:
		return Frame{Type: FrameThought, Category: category, Content: v.Text, Source: v.Source}, true
	case event.TextDelta:
		return Frame{Type: FrameLLMChunk, Category: category, Content: v.Text}, true
	case event.FinalText:
		return Frame{Type: FrameLLMChunk, Category: category, Content: v.Text, Source: v.Source, Final: true}, true
	case event.ToolCallRequest:
		return Frame{Type: FrameToolCall, Category: category, Phase: PhaseRequest,
			ToolCall: &ToolCallFrame{ID: v.ID, Name: v.Name, Arguments: v.Arguments}}, true
	case event.ToolCallResult:
		return Frame{Type: FrameToolCall, Category: category, Phase: PhaseResult,
			ToolCall: &ToolCallFrame{ID: v.CallID, Name: v.Name, Result: v.Text, IsError: v.IsError}}, true
	case event.ToolSummary:
		return Frame{Type: FrameToolCall, Category: category, Phase: PhaseSummary, Content: v.Text, Source: v.Source}, true
	}
	return Frame{}, false
}

// NotificationFrame renders a reminder for broadcast.
func NotificationFrame(n notifier.Notification) Frame {
	return Frame{
		Type:       FrameNotification,
		Category:   event.ChannelOther,
		Title:      n.Title,
		Message:    n.Message,
		ScheduleID: n.ScheduleID,
	}
}

func statusFrame(status, message string) Frame {
	return Frame{Type: FrameStatus, Status: status, Message: message}
}

func errorFrame(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}
