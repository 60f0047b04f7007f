package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"
)

// fakeBackend serves a canned Chat Completions response and records the
// last request it saw.
type fakeBackend struct {
	*httptest.Server
	lastBody   []byte
	lastHeader http.Header
}

func newFakeBackend(t *testing.T, contentType string, body string) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		fb.lastBody, _ = io.ReadAll(r.Body)
		fb.lastHeader = r.Header.Clone()
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(fb.Close)
	return fb
}

func TestOpenRouterChatNormalizesReasoning(t *testing.T) {
	fb := newFakeBackend(t, "application/json", `{
		"id": "gen-1", "object": "chat.completion", "model": "moonshotai/kimi-k2.5",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "Done.", "reasoning": "The user wants a reminder."}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
	}`)

	p, err := ProviderOpenRouter.Model(ModelOpenRouterKimiK25).BaseURL(fb.URL).APIKey("sk-or-test")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())

	resp, err := p.Chat(context.Background(), []ChatMessage{SystemMessage("sys"), UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Content)
	assert.Equal(t, "The user wants a reminder.", resp.Reasoning)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, uint32(15), resp.Usage.TotalTokens)

	assert.Equal(t, "Bearer sk-or-test", fb.lastHeader.Get("Authorization"))
	assert.Equal(t, "tablecopilot", fb.lastHeader.Get("X-Title"))
	assert.Equal(t, "moonshotai/kimi-k2.5", gjson.GetBytes(fb.lastBody, "model").String())
	assert.False(t, gjson.GetBytes(fb.lastBody, "tools").Exists())
}

func TestOpenAIChatWithTools(t *testing.T) {
	fb := newFakeBackend(t, "application/json", `{
		"id": "c-1", "object": "chat.completion",
		"choices": [{"index": 0, "finish_reason": "tool_calls",
			"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "list_schedules", "arguments": "{\"status\":\"all\"}"}}]}}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
	}`)

	p := NewOpenAIProvider("sk-test", "gpt-4o", 256, 0.2, WithBaseURL(fb.URL))
	tools := []ToolDefinition{{
		Name:        "list_schedules",
		Description: "List schedules",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}}
	history := []ChatMessage{
		UserMessage("what do I have?"),
		AssistantToolCallMessage("", []ToolCall{{ID: "call_0", Name: "list_schedules", Arguments: json.RawMessage(`{}`)}}),
		ToolMessage("call_0", "list_schedules", `{"success":true}`),
	}

	resp, err := p.ChatWithTools(context.Background(), history, tools)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "list_schedules", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"status":"all"}`, string(resp.ToolCalls[0].Arguments))

	body := gjson.ParseBytes(fb.lastBody)
	assert.Equal(t, "list_schedules", body.Get("tools.0.function.name").String())
	assert.Equal(t, "call_0", body.Get("messages.1.tool_calls.0.id").String())
	assert.Equal(t, "tool", body.Get("messages.2.role").String())
	assert.Equal(t, "call_0", body.Get("messages.2.tool_call_id").String())
}

func sseBody(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "data: %s\n\n", c)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestOpenAIStreamWithTools(t *testing.T) {
	fb := newFakeBackend(t, "text/event-stream", sseBody(
		`{"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","reasoning":"Need to "}}]}`,
		`{"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"reasoning":"check."}}]}`,
		`{"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Let me look."}}]}`,
		`{"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"create_schedule","arguments":"{\"title\":"}}]}}]}`,
		`{"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Gym\"}"}}]}}]}`,
	))

	p := NewOpenAIProvider("sk-test", "gpt-4o", 256, 0.2, WithBaseURL(fb.URL))

	var texts, thoughts []string
	resp, err := p.StreamWithTools(context.Background(), []ChatMessage{UserMessage("gym")}, nil, func(text, reasoning string) {
		if text != "" {
			texts = append(texts, text)
		}
		if reasoning != "" {
			thoughts = append(thoughts, reasoning)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "Let me look.", resp.Content)
	assert.Equal(t, "Need to check.", resp.Reasoning)
	assert.Equal(t, []string{"Let me look."}, texts)
	assert.Equal(t, []string{"Need to ", "check."}, thoughts)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_9", resp.ToolCalls[0].ID)
	assert.Equal(t, "create_schedule", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"title":"Gym"}`, string(resp.ToolCalls[0].Arguments))
	assert.True(t, gjson.GetBytes(fb.lastBody, "stream").Bool())
}

func TestOpenAIStreamChat(t *testing.T) {
	fb := newFakeBackend(t, "text/event-stream", sseBody(
		`{"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`{"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
	))
	p := NewOpenAIProvider("sk-test", "gpt-4o", 256, 0.2, WithBaseURL(fb.URL))

	chunks := make(chan string, 10)
	_, err := p.StreamChat(context.Background(), []ChatMessage{UserMessage("hi")}, chunks)
	require.NoError(t, err)
	close(chunks)

	var got strings.Builder
	for c := range chunks {
		got.WriteString(c)
	}
	assert.Equal(t, "Hello", got.String())
}

func TestNormalizeReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "copies reasoning",
			in:   `{"choices":[{"message":{"reasoning":"r"}}]}`,
			want: "r",
		},
		{
			name: "keeps existing reasoning_content",
			in:   `{"choices":[{"message":{"reasoning":"r","reasoning_content":"kept"}}]}`,
			want: "kept",
		},
		{
			name: "ignores non-string reasoning",
			in:   `{"choices":[{"message":{"reasoning":{"effort":"high"}}}]}`,
			want: "",
		},
		{
			name: "no choices",
			in:   `{"error":{"message":"nope"}}`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := normalizeReasoning([]byte(tt.in), "message")
			assert.Equal(t, tt.want, gjson.GetBytes(out, "choices.0.message.reasoning_content").String())
		})
	}
}

func TestRewriteEventLine(t *testing.T) {
	line := []byte(`data: {"choices":[{"delta":{"reasoning":"hm"}}]}` + "\n")
	out := rewriteEventLine(line)
	assert.True(t, strings.HasPrefix(string(out), "data: "))
	assert.Equal(t, "hm", gjson.Get(strings.TrimPrefix(strings.TrimSpace(string(out)), "data: "), "choices.0.delta.reasoning_content").String())

	for _, passthrough := range []string{"data: [DONE]\n", "\n", ": keep-alive\n", `data: {"choices":[{"delta":{"content":"x"}}]}` + "\n"} {
		assert.Equal(t, passthrough, string(rewriteEventLine([]byte(passthrough))))
	}
}

func TestParseProviderType(t *testing.T) {
	tests := map[string]ProviderType{
		"":           ProviderOpenRouter,
		"OpenRouter": ProviderOpenRouter,
		"gpt":        ProviderOpenAI,
		"claude":     ProviderAnthropic,
		"deepseek":   ProviderDeepSeek,
		"google":     ProviderGemini,
	}
	for in, want := range tests {
		got, err := ParseProviderType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, want.String(), got.String())
	}

	_, err := ParseProviderType("mistral")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"auth","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(testKey, "gpt-4o", 100, 0.7, WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.ChatWithTools(ctx, []ChatMessage{UserMessage("test")}, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKey)
	assert.NotContains(t, err.Error(), "Authorization:")

	_, err = p.StreamChat(ctx, []ChatMessage{UserMessage("test")}, make(chan string, 1))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKey)
}

func TestGeminiInitErrorPreserved(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	provider := NewGeminiProvider("", ModelGeminiFlash25, 100, 0.7)

	_, err := provider.Chat(context.Background(), []ChatMessage{UserMessage("test")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize")
}

func TestConvertToAnthropicMessagesGroupsToolResults(t *testing.T) {
	msgs, system := convertToAnthropicMessages([]ChatMessage{
		SystemMessage("be brief"),
		UserMessage("plan my day"),
		AssistantToolCallMessage("", []ToolCall{
			{ID: "a", Name: "list_schedules", Arguments: json.RawMessage(`{}`)},
			{ID: "b", Name: "create_schedule", Arguments: json.RawMessage(`{"title":"x"}`)},
		}),
		ToolMessage("a", "list_schedules", "{}"),
		ToolMessage("b", "create_schedule", "{}"),
		AssistantMessage("done"),
	})
	assert.Equal(t, "be brief", system)
	require.Len(t, msgs, 4)
	assert.Len(t, msgs[1].Content, 2)
	assert.Len(t, msgs[2].Content, 2)
}

func TestAnthropicUsage(t *testing.T) {
	assert.Nil(t, anthropicUsage(0, 0))
	assert.Equal(t, &TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, anthropicUsage(3, 4))
}

func TestGeminiSchema(t *testing.T) {
	schema := geminiSchema(map[string]any{
		"type":     "object",
		"required": []any{"title"},
		"properties": map[string]any{
			"title":  map[string]any{"type": "string", "description": "what"},
			"repeat": map[string]any{"type": "string", "enum": []any{"once", "daily"}},
			"tags":   map[string]any{"type": "array"},
			"limit":  map[string]any{"type": "integer"},
			"odd":    map[string]any{"type": "null"},
		},
	})
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"title"}, schema.Required)
	assert.Equal(t, "what", schema.Properties["title"].Description)
	assert.Equal(t, []string{"once", "daily"}, schema.Properties["repeat"].Enum)
	require.NotNil(t, schema.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, schema.Properties["tags"].Items.Type)
	assert.Equal(t, genai.TypeInteger, schema.Properties["limit"].Type)
	assert.Equal(t, genai.TypeString, schema.Properties["odd"].Type)

	tools := geminiTools([]ToolDefinition{{Name: "noop", Parameters: map[string]any{}}})
	require.Len(t, tools, 1)
	assert.Equal(t, genai.TypeObject, tools[0].FunctionDeclarations[0].Parameters.Type)
	assert.Nil(t, geminiTools(nil))
}

func TestGeminiContents(t *testing.T) {
	contents, system := geminiContents([]ChatMessage{
		SystemMessage("be brief"),
		UserMessage("plan my day"),
		AssistantToolCallMessage("checking", []ToolCall{{ID: "a", Name: "list_schedules", Arguments: json.RawMessage(`{}`)}}),
		ToolMessage("a", "list_schedules", "not json"),
	})
	assert.Equal(t, "be brief", system)
	require.Len(t, contents, 3)
	assert.Len(t, contents[1].Parts, 2)
	resp := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, genai.RoleUser, contents[2].Role)
	assert.Equal(t, "list_schedules", resp.Name)
	assert.Equal(t, map[string]any{"result": "not json"}, resp.Response)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredFields(map[string]any{"required": []string{"a"}}))
	assert.Equal(t, []string{"a", "b"}, requiredFields(map[string]any{"required": []any{"a", "b", 3}}))
	assert.Nil(t, requiredFields(map[string]any{}))
}
