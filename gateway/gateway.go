// Package gateway is the model boundary of the turn loop: one call per round,
// with the round's output announced as events.
//
// Information Hiding:
// - Which provider backs a round and whether it streams
// - Assembly of the message list sent to the provider
// - Translation of provider replies into events
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/event"
	"github.com/richinex/tablecopilot/llm"
)

// Request is one model round.
type Request struct {
	SystemPrompt string
	Messages     []llm.ChatMessage
	Tools        []llm.ToolDefinition
	ToolsEnabled bool
	// Source names the agent that produces this round's final text.
	Source string
}

// Reply is what a round produced.
type Reply struct {
	Text      string
	Reasoning string
	ToolCalls []event.ToolCallRequest
}

// Gateway performs model rounds. Round emits, in order: TextDelta events
// while streaming, one Reasoning event when the round carries reasoning or
// text alongside tool calls, then either the ToolCallRequest events or a
// FinalText event. Tool calls returned by a round without tools are dropped,
// so its text is always final.
type Gateway interface {
	Round(ctx context.Context, req Request, emit func(event.Event)) (Reply, error)
}

// LLM is a Gateway backed by an llm.Provider.
type LLM struct {
	provider llm.Provider
	logger   *zap.Logger
	stream   bool
}

// Option configures an LLM gateway.
type Option func(*LLM)

// WithStreaming enables incremental text when the provider supports it.
func WithStreaming(enabled bool) Option {
	return func(g *LLM) { g.stream = enabled }
}

// NewLLM creates a gateway over provider.
func NewLLM(provider llm.Provider, logger *zap.Logger, opts ...Option) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &LLM{provider: provider, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the provider behind the gateway.
func (g *LLM) Provider() llm.Provider {
	return g.provider
}

// Round sends one request to the provider.
func (g *LLM) Round(ctx context.Context, req Request, emit func(event.Event)) (Reply, error) {
	if emit == nil {
		emit = func(event.Event) {}
	}
	messages := make([]llm.ChatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, req.Messages...)

	var tools []llm.ToolDefinition
	if req.ToolsEnabled {
		tools = req.Tools
	}

	g.logger.Debug("gateway round",
		zap.String("provider", g.provider.Name()),
		zap.Int("messages", len(messages)),
		zap.Int("tools", len(tools)))

	var (
		resp llm.LLMResponse
		err  error
	)
	if streamer, ok := g.provider.(llm.ToolStreamer); ok && g.stream {
		resp, err = streamer.StreamWithTools(ctx, messages, tools, func(text, _ string) {
			if text != "" {
				emit(event.TextDelta{Text: text})
			}
		})
	} else {
		resp, err = g.provider.ChatWithTools(ctx, messages, tools)
	}
	if err != nil {
		return Reply{}, fmt.Errorf("%s round failed: %w", g.provider.Name(), err)
	}

	reply := Reply{Text: resp.Content, Reasoning: resp.Reasoning}
	for _, tc := range resp.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, event.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	if !req.ToolsEnabled && len(reply.ToolCalls) > 0 {
		g.logger.Debug("dropping tool calls from round without tools",
			zap.String("provider", g.provider.Name()),
			zap.Int("calls", len(reply.ToolCalls)))
	}
	reply = settle(reply, req.ToolsEnabled)
	Announce(reply, req.Source, emit)
	return reply, nil
}

// settle normalizes a reply, discarding its calls when tools were off.
func settle(reply Reply, toolsEnabled bool) Reply {
	if !toolsEnabled {
		reply.ToolCalls = nil
		return reply
	}
	return normalize(reply)
}

// Announce emits the events describing a completed round.
func Announce(reply Reply, source string, emit func(event.Event)) {
	reasoning := strings.TrimSpace(reply.Reasoning)
	if len(reply.ToolCalls) > 0 {
		if text := strings.TrimSpace(reply.Text); text != "" {
			if reasoning != "" {
				reasoning += "\n\n"
			}
			reasoning += text
		}
	}
	if reasoning != "" {
		emit(event.Reasoning{Text: reasoning, Source: source})
	}
	if len(reply.ToolCalls) > 0 {
		for _, call := range reply.ToolCalls {
			emit(call)
		}
		return
	}
	if strings.TrimSpace(reply.Text) != "" {
		emit(event.FinalText{Text: reply.Text, Source: source})
	}
}

// normalize gives every call an id and a JSON object argument.
func normalize(reply Reply) Reply {
	if len(reply.ToolCalls) == 0 {
		return reply
	}
	calls := make([]event.ToolCallRequest, len(reply.ToolCalls))
	copy(calls, reply.ToolCalls)
	reply.ToolCalls = calls
	for i, call := range reply.ToolCalls {
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()[:8]
		}
		if len(strings.TrimSpace(string(call.Arguments))) == 0 {
			call.Arguments = json.RawMessage("{}")
		}
		reply.ToolCalls[i] = call
	}
	return reply
}
