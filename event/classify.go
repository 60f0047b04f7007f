package event

// Category is the semantic class of an event.
type Category string

const (
	CategoryReasoning   Category = "reasoning"
	CategoryToolRequest Category = "tool_request"
	CategoryToolResult  Category = "tool_result"
	CategoryToolSummary Category = "tool_summary"
	CategoryFinalText   Category = "final_text"
	CategoryStructural  Category = "structural"
)

// Channel tags used when events are forwarded to a client.
const (
	ChannelLLM   = "llm"
	ChannelTool  = "tool"
	ChannelOther = "other"
)

// Classify maps an event to its category. It is pure and stateless.
func Classify(e Event) Category {
	switch e.(type) {
	case Reasoning:
		return CategoryReasoning
	case ToolCallRequest:
		return CategoryToolRequest
	case ToolCallResult:
		return CategoryToolResult
	case ToolSummary:
		return CategoryToolSummary
	case FinalText:
		return CategoryFinalText
	default:
		return CategoryStructural
	}
}

// Channel returns the coarse channel tag for forwarding an event.
func Channel(e Event) string {
	switch e.(type) {
	case Reasoning, TextDelta, FinalText:
		return ChannelLLM
	case ToolCallRequest, ToolCallResult, ToolSummary:
		return ChannelTool
	default:
		return ChannelOther
	}
}

// IsAnswerBearing reports whether an event's category can hold a final answer.
func IsAnswerBearing(c Category) bool {
	return c == CategoryFinalText || c == CategoryToolSummary
}
