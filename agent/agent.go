// Turn loop: the bounded request, execute, reflect cycle for one message.
//
// Information Hiding:
// - Round sequencing, iteration cap and forced final round
// - Conversation context fed back to the model between rounds
// - Tool dispatch timing relative to emitted requests

package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/event"
	"github.com/richinex/tablecopilot/gateway"
	"github.com/richinex/tablecopilot/llm"
	"github.com/richinex/tablecopilot/model"
)

// Round modes reported to a RoundObserver.
const (
	RoundTools      = "tools"
	RoundForced     = "forced"
	RoundReflection = "reflection"
)

// Dispatcher runs one tool call. *tools.Executor satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req event.ToolCallRequest) event.ToolCallResult
}

// RoundObserver is told about every gateway round.
type RoundObserver func(mode string)

// Agent drives turns for one configuration.
type Agent struct {
	config   Config
	gateway  gateway.Gateway
	tools    Dispatcher
	logger   *zap.Logger
	observer RoundObserver
}

// New creates an agent.
func New(config Config, gw gateway.Gateway, tools Dispatcher, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{config: config, gateway: gw, tools: tools, logger: logger}
}

// WithRoundObserver sets a callback invoked before every gateway round.
func (a *Agent) WithRoundObserver(fn RoundObserver) *Agent {
	a.observer = fn
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// Config returns the agent's configuration.
func (a *Agent) Config() Config {
	return a.config
}

// turn is the state of one Run.
type turn struct {
	events   []event.Event
	emit     func(event.Event)
	messages []llm.ChatMessage
}

func (t *turn) record(e event.Event) {
	t.events = append(t.events, e)
	if t.emit != nil {
		t.emit(e)
	}
}

// Run executes one turn for task on top of history. Every event is passed
// to emit as it happens and returned in order, ending with TurnComplete.
// A gateway failure aborts the turn; the events emitted so far are returned
// with the error and no TurnComplete is added.
func (a *Agent) Run(ctx context.Context, history []model.HistoryEntry, task string, emit func(event.Event)) ([]event.Event, error) {
	t := &turn{emit: emit, messages: toMessages(history, task)}
	limit := a.config.iterationCap()

	var (
		reply       gateway.Reply
		forced      bool
		lastResults []event.ToolCallResult
		lastCalls   []event.ToolCallRequest
	)
	for iteration := 1; ; iteration++ {
		forced = iteration > limit
		toolsEnabled := !forced && a.config.HasTools()
		mode := RoundTools
		if forced {
			mode = RoundForced
		}

		calls, results, r, err := a.round(ctx, t, toolsEnabled, mode, iteration)
		if err != nil {
			return t.events, err
		}
		reply = r
		if len(calls) == 0 {
			break
		}
		lastCalls, lastResults = calls, results
		t.messages = append(t.messages, llm.AssistantToolCallMessage(reply.Text, toLLMCalls(calls)))
		for _, res := range results {
			t.messages = append(t.messages, llm.ToolMessage(res.CallID, res.Name, res.Text))
		}
	}

	// No reflection after a forced round; it already ran without tools.
	if strings.TrimSpace(reply.Text) == "" && len(lastResults) > 0 {
		t.record(summarize(a.config.Name, lastCalls, lastResults))

		if a.config.ReflectOnToolUse && !forced {
			if _, _, _, err := a.round(ctx, t, false, RoundReflection, 0); err != nil {
				return t.events, err
			}
		}
	}

	inner := make([]event.Event, len(t.events))
	copy(inner, t.events)
	t.record(event.TurnComplete{Events: inner})
	return t.events, nil
}

// round performs one gateway call. With tools enabled, each request is
// dispatched as soon as it is emitted and its result recorded right after.
// It returns the dispatched calls and their results.
func (a *Agent) round(ctx context.Context, t *turn, toolsEnabled bool, mode string, iteration int) ([]event.ToolCallRequest, []event.ToolCallResult, gateway.Reply, error) {
	if a.observer != nil {
		a.observer(mode)
	}
	a.logger.Debug("gateway round",
		zap.String("agent", a.config.Name),
		zap.String("mode", mode),
		zap.Int("iteration", iteration),
		zap.Bool("tools_enabled", toolsEnabled))

	req := gateway.Request{
		SystemPrompt: a.config.SystemPrompt,
		Messages:     t.messages,
		Tools:        a.config.Tools,
		ToolsEnabled: toolsEnabled,
		Source:       a.config.Name,
	}

	var (
		calls   []event.ToolCallRequest
		results []event.ToolCallResult
	)
	reply, err := a.gateway.Round(ctx, req, func(e event.Event) {
		t.record(e)
		call, ok := e.(event.ToolCallRequest)
		if !ok || !toolsEnabled {
			return
		}
		res := a.tools.Dispatch(ctx, call)
		calls = append(calls, call)
		results = append(results, res)
		t.record(res)
	})
	if err != nil {
		return calls, results, reply, fmt.Errorf("model round %d (%s): %w", iteration, mode, err)
	}
	if !toolsEnabled {
		calls, results = nil, nil
	}
	return calls, results, reply, nil
}

func summarize(source string, calls []event.ToolCallRequest, results []event.ToolCallResult) event.ToolSummary {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return event.ToolSummary{
		Text:    strings.Join(texts, "\n"),
		Source:  source,
		Calls:   calls,
		Results: results,
	}
}

func toMessages(history []model.HistoryEntry, task string) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, len(history)+1)
	for _, h := range history {
		switch h.Role {
		case model.RoleAssistant:
			msgs = append(msgs, llm.AssistantMessage(h.Content))
		default:
			msgs = append(msgs, llm.UserMessage(h.Content))
		}
	}
	return append(msgs, llm.UserMessage(task))
}

func toLLMCalls(calls []event.ToolCallRequest) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = llm.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	return out
}
