// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Messages API
// - Grouping of tool results into a single user turn
// - Thinking blocks surfaced as reasoning

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	message, err := p.client.Messages.New(ctx, p.params(messages, tools))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("anthropic messages: %w", err)
	}
	out := readAnthropicBlocks(message.Content)
	out.Usage = anthropicUsage(message.Usage.InputTokens, message.Usage.OutputTokens)
	return out, nil
}

// readAnthropicBlocks folds text, thinking and tool-use blocks into one
// response.
func readAnthropicBlocks(blocks []anthropic.ContentBlockUnion) LLMResponse {
	var (
		out             LLMResponse
		text, reasoning strings.Builder
	)
	for _, block := range blocks {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ThinkingBlock:
			reasoning.WriteString(b.Thinking)
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	out.Content = text.String()
	out.Reasoning = reasoning.String()
	return out
}

func anthropicUsage(in, out int64) *TokenUsage {
	if in <= 0 && out <= 0 {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     uint32(in),
		CompletionTokens: uint32(out),
		TotalTokens:      uint32(in + out),
	}
}

// StreamChat streams text deltas into chunks.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(messages, nil))

	var in, out int64
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			in = ev.Message.Usage.InputTokens
		case anthropic.MessageDeltaEvent:
			out = ev.Usage.OutputTokens
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			select {
			case chunks <- delta.Text:
			case <-ctx.Done():
				return anthropicUsage(in, out), ctx.Err()
			}
		}
	}
	if err := stream.Err(); err != nil {
		return anthropicUsage(in, out), fmt.Errorf("anthropic stream: %w", err)
	}
	return anthropicUsage(in, out), nil
}

func (p *AnthropicProvider) params(messages []ChatMessage, tools []ToolDefinition) anthropic.MessageNewParams {
	turns, system := convertToAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    turns,
		Temperature: anthropic.Float(p.temperature),
		Tools:       anthropicTools(tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// convertToAnthropicMessages extracts the system prompt. Anthropic wants
// the results of one tool round in a single user turn, so consecutive tool
// messages are grouped.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var (
		turns   []anthropic.MessageParam
		system  string
		pending []anthropic.ContentBlockParamUnion
	)
	for _, msg := range messages {
		if msg.Role == RoleTool {
			pending = append(pending, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		if len(pending) > 0 {
			turns = append(turns, anthropic.NewUserMessage(pending...))
			pending = nil
		}
		switch msg.Role {
		case RoleSystem:
			system = msg.Content
		case RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			turns = append(turns, anthropicAssistantTurn(msg))
		}
	}
	if len(pending) > 0 {
		turns = append(turns, anthropic.NewUserMessage(pending...))
	}
	return turns, system
}

func anthropicAssistantTurn(msg ChatMessage) anthropic.MessageParam {
	var blocks []anthropic.ContentBlockParamUnion
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		var input map[string]any
		if err := json.Unmarshal(call.Arguments, &input); err != nil || input == nil {
			input = map[string]any{}
		}
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{ID: call.ID, Name: call.Name, Input: input},
		})
	}
	return anthropic.NewAssistantMessage(blocks...)
}

func anthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Parameters["properties"],
				Required:   requiredFields(t.Parameters),
			},
		}})
	}
	return out
}

// requiredFields reads "required" whether the schema was built in Go or
// decoded from JSON.
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var _ Provider = (*AnthropicProvider)(nil)
