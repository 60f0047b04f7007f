// Google Gemini provider using the google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Conversion between chat messages and content parts
// - Tool call identity (Gemini may omit call ids)
// - Thought parts surfaced as reasoning

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error
}

// NewGeminiProvider creates a new Gemini provider. A client construction
// failure is reported by the first call.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	p := &GeminiProvider{model: model, maxTokens: int32(maxTokens), temperature: temperature}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *GeminiProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}

	contents, config := p.request(messages)
	config.Tools = geminiTools(tools)

	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	var (
		out       LLMResponse
		content   strings.Builder
		reasoning strings.Builder
	)
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		for i, part := range response.Candidates[0].Content.Parts {
			switch {
			case part.FunctionCall != nil:
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("%s_%d", part.FunctionCall.Name, i)
				}
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: argsJSON,
				})
			case part.Thought:
				reasoning.WriteString(part.Text)
			default:
				content.WriteString(part.Text)
			}
		}
	}
	if content.Len() == 0 && len(out.ToolCalls) == 0 && reasoning.Len() == 0 {
		return LLMResponse{}, fmt.Errorf("empty response from Gemini")
	}
	out.Content = content.String()
	out.Reasoning = reasoning.String()
	out.Usage = geminiUsage(response.UsageMetadata)
	return out, nil
}

// StreamChat streams a chat completion.
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	contents, config := p.request(messages)

	var usage *TokenUsage
	for response, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return usage, fmt.Errorf("stream error: %w", err)
		}
		if response.UsageMetadata != nil {
			usage = geminiUsage(response.UsageMetadata)
		}
		if text := response.Text(); text != "" {
			select {
			case chunks <- text:
			case <-ctx.Done():
				return usage, ctx.Err()
			}
		}
	}
	return usage, nil
}

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return fmt.Errorf("gemini client not initialized")
	}
	return nil
}

func (p *GeminiProvider) request(messages []ChatMessage) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents, systemInstruction := geminiContents(messages)
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	return contents, config
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *TokenUsage {
	if meta == nil {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     uint32(meta.PromptTokenCount),
		CompletionTokens: uint32(meta.CandidatesTokenCount),
		TotalTokens:      uint32(meta.TotalTokenCount),
	}
}

// geminiContents splits off the system instruction and maps the rest of
// the conversation onto Gemini contents.
func geminiContents(messages []ChatMessage) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   string
	)
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = msg.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, geminiModelTurn(msg))
		case RoleTool:
			contents = append(contents, geminiToolResult(msg))
		}
	}
	return contents, system
}

func geminiModelTurn(msg ChatMessage) *genai.Content {
	if len(msg.ToolCalls) == 0 {
		return genai.NewContentFromText(msg.Content, genai.RoleModel)
	}
	turn := &genai.Content{Role: genai.RoleModel}
	if msg.Content != "" {
		turn.Parts = append(turn.Parts, genai.NewPartFromText(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal(call.Arguments, &args)
		turn.Parts = append(turn.Parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: args},
		})
	}
	return turn
}

// geminiToolResult wraps a tool message as a function response. Gemini
// takes function responses in the user role and wants an object payload.
func geminiToolResult(msg ChatMessage) *genai.Content {
	name := msg.Name
	if name == "" {
		name = msg.ToolCallID
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil || payload == nil {
		payload = map[string]any{"result": msg.Content}
	}
	return &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{{
			FunctionResponse: &genai.FunctionResponse{ID: msg.ToolCallID, Name: name, Response: payload},
		}},
	}
}

func geminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		params := geminiSchema(t.Parameters)
		if params.Type == "" {
			params.Type = genai.TypeObject
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

var geminiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// geminiSchema converts a JSON schema node. Unknown types become strings,
// and arrays always get items since Gemini rejects them otherwise.
func geminiSchema(node map[string]any) *genai.Schema {
	out := &genai.Schema{}
	if t, ok := node["type"].(string); ok {
		if gt, known := geminiTypes[t]; known {
			out.Type = gt
		} else {
			out.Type = genai.TypeString
		}
	}
	out.Description, _ = node["description"].(string)
	out.Required = requiredFields(node)
	if values, ok := node["enum"].([]any); ok {
		for _, v := range values {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if props, ok := node["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if child, ok := prop.(map[string]any); ok {
				out.Properties[name] = geminiSchema(child)
			}
		}
	}
	if out.Type == genai.TypeArray {
		if items, ok := node["items"].(map[string]any); ok {
			out.Items = geminiSchema(items)
		} else {
			out.Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	return out
}

var _ Provider = (*GeminiProvider)(nil)
