package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/richinex/tablecopilot/internal/logging"
	"github.com/richinex/tablecopilot/server"
)

const maxObservationLen = 200

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// describeParameters renders "name*: type - description" lines from a JSON
// schema, required parameters marked with *.
func describeParameters(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []string:
		for _, name := range req {
			required[name] = true
		}
	case []any:
		for _, name := range req {
			if s, ok := name.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		typ, _ := prop["type"].(string)
		desc, _ := prop["description"].(string)
		mark := ""
		if required[name] {
			mark = "*"
		}
		line := fmt.Sprintf("%s%s: %s", name, mark, typ)
		if desc != "" {
			line += " - " + desc
		}
		lines = append(lines, line)
	}
	return lines
}

// formatFrame renders one server frame for the terminal. Streamed chunks
// are printed inline; the final chunk is skipped because the response
// frame carries the same text.
func formatFrame(in server.Incoming) (string, bool) {
	switch in.Type {
	case server.FrameConnection:
		return fmt.Sprintf("Connected: %s\n", in.Message), true
	case server.FrameStatus:
		return fmt.Sprintf("[%s] %s\n", in.Status, in.Message), true
	case server.FrameThought:
		return fmt.Sprintf("[thought] %s\n", logging.Preview(in.Content, maxObservationLen)), true
	case server.FrameLLMChunk:
		if in.Final {
			return "", false
		}
		return in.Content, true
	case server.FrameToolCall:
		return formatToolCall(in), true
	case server.FrameResponse:
		return fmt.Sprintf("\n%s\n", in.Content), true
	case server.FrameError:
		return fmt.Sprintf("Error: %s\n", in.Message), true
	case server.FramePong:
		return "pong\n", true
	case server.FrameNotification:
		return fmt.Sprintf("[reminder] %s: %s\n", in.Title, in.Message), true
	default:
		return "", false
	}
}

func formatToolCall(in server.Incoming) string {
	switch in.Phase {
	case server.PhaseRequest:
		if in.ToolCall == nil {
			return "[tool] request\n"
		}
		return fmt.Sprintf("[tool] %s(%s)\n", in.ToolCall.Name, logging.Preview(string(in.ToolCall.Arguments), maxObservationLen))
	case server.PhaseResult:
		if in.ToolCall == nil {
			return "[tool] result\n"
		}
		status := "ok"
		if in.ToolCall.IsError {
			status = "error"
		}
		return fmt.Sprintf("[tool] %s %s: %s\n", in.ToolCall.Name, status, logging.Preview(in.ToolCall.Result, maxObservationLen))
	default:
		return fmt.Sprintf("[tool] %s\n", logging.Preview(in.Content, maxObservationLen))
	}
}
