// OpenAI-compatible provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - Streaming, including incremental tool-call assembly
// - One implementation serves OpenAI, OpenRouter and DeepSeek by base URL

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for any Chat Completions backend.
type OpenAIProvider struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// OpenAIOption customizes an OpenAIProvider.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	name      string
	baseURL   string
	transport http.RoundTripper
	headers   map[string]string
}

// WithBaseURL points the provider at another compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithProviderName overrides the name reported by Name.
func WithProviderName(name string) OpenAIOption {
	return func(o *openAIOptions) { o.name = name }
}

// WithTransport sets the underlying HTTP transport.
func WithTransport(rt http.RoundTripper) OpenAIOption {
	return func(o *openAIOptions) { o.transport = rt }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) OpenAIOption {
	return func(o *openAIOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32, opts ...OpenAIOption) *OpenAIProvider {
	o := openAIOptions{name: "openai"}
	for _, opt := range opts {
		opt(&o)
	}

	config := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	config.HTTPClient = &http.Client{
		Transport: newReasoningTransport(&headerTransport{base: o.transport, headers: o.headers}),
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		name:        o.name,
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(messages, tools, false))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	var out LLMResponse
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		out.Reasoning = msg.ReasoningContent
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}
	out.Usage = openAIUsage(resp.Usage)
	return out, nil
}

// StreamChat streams a chat completion.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	var sendErr error
	resp, err := p.StreamWithTools(ctx, messages, nil, func(text, _ string) {
		if text == "" || sendErr != nil {
			return
		}
		select {
		case chunks <- text:
		case <-ctx.Done():
			sendErr = ctx.Err()
		}
	})
	if err != nil {
		return resp.Usage, err
	}
	return resp.Usage, sendErr
}

// StreamWithTools streams a completion and assembles tool calls from their
// indexed fragments.
func (p *OpenAIProvider) StreamWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, onDelta DeltaFunc) (LLMResponse, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(messages, tools, true))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var (
		out       LLMResponse
		content   strings.Builder
		reasoning strings.Builder
		calls     = map[int]*ToolCall{}
		callArgs  = map[int]*strings.Builder{}
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("stream recv failed: %w", err)
		}
		if chunk.Usage != nil {
			out.Usage = openAIUsage(*chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" || delta.ReasoningContent != "" {
			content.WriteString(delta.Content)
			reasoning.WriteString(delta.ReasoningContent)
			if onDelta != nil {
				onDelta(delta.Content, delta.ReasoningContent)
			}
		}
		for i, tc := range delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &ToolCall{}
				calls[idx] = call
				callArgs[idx] = &strings.Builder{}
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			callArgs[idx].WriteString(tc.Function.Arguments)
		}
	}

	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		call := *calls[idx]
		call.Arguments = []byte(callArgs[idx].String())
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", idx)
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	out.Content = content.String()
	out.Reasoning = reasoning.String()
	return out, nil
}

func (p *OpenAIProvider) request(messages []ChatMessage, tools []ToolDefinition, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Tools:       convertToOpenAITools(tools),
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

func openAIUsage(u openai.Usage) *TokenUsage {
	return &TokenUsage{
		PromptTokens:     uint32(u.PromptTokens),
		CompletionTokens: uint32(u.CompletionTokens),
		TotalTokens:      uint32(u.TotalTokens),
	}
}

// convertToOpenAIMessages handles plain, tool-call and tool-result messages.
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == RoleTool {
			oaiMsg.Name = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		result[i] = oaiMsg
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// headerTransport adds fixed headers, such as OpenRouter attribution.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.headers) == 0 {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return base.RoundTrip(req)
}

var (
	_ Provider     = (*OpenAIProvider)(nil)
	_ ToolStreamer = (*OpenAIProvider)(nil)
)
