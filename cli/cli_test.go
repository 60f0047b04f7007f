package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/richinex/tablecopilot/config"
	"github.com/richinex/tablecopilot/server"
)

func dryRunSettings() config.Settings {
	s := config.Defaults()
	s.Storage.Driver = config.DriverMemory
	s.LLM.Model = "unused"
	return s
}

func startServer(t *testing.T) (*App, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	app, err := Build(dryRunSettings(), logger, Options{DryRun: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	srv := server.New(server.Config{}, app.Orchestrator, app.Metrics, logger)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Close(ctx))
	})
	return app, "ws" + strings.TrimPrefix(hs.URL, "http") + "/"
}

func TestBuildDryRun(t *testing.T) {
	app, err := Build(dryRunSettings(), nil, Options{DryRun: true})
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, DryRunModel, app.ModelName)
	assert.Equal(t, []string{"askUserQuestion", "create_schedule", "delete_schedule", "list_schedules", "update_schedule"}, app.Registry.Names())

	cfg := app.sessionConfig("s1")
	assert.Equal(t, "assistant", cfg.Name)
	assert.Len(t, cfg.Tools, 5)
	assert.Contains(t, cfg.SystemPrompt, DryRunModel)
	assert.NotContains(t, cfg.SystemPrompt, "{{MODEL_NAME}}")

	res, err := app.Orchestrator.ProcessMessage(context.Background(), "s1", "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, "(dry run) hello there", res.Content)
}

func TestBuildRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_KEY", "")

	_, err := Build(dryRunSettings(), nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}

func TestBuildUnknownStorage(t *testing.T) {
	s := dryRunSettings()
	s.Storage.Driver = "tape"
	_, err := Build(s, nil, Options{DryRun: true})
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	_, url := startServer(t)

	var out bytes.Buffer
	require.NoError(t, Check(context.Background(), ClientOptions{URL: url}, &out))
	assert.Contains(t, out.String(), "Connected: "+server.ConnectedMessage)
	assert.Contains(t, out.String(), "is healthy")
}

func TestCheckUnreachable(t *testing.T) {
	hs := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/"
	hs.Close()

	var out bytes.Buffer
	assert.Error(t, Check(context.Background(), ClientOptions{URL: url}, &out))
}

func TestChatSession(t *testing.T) {
	app, url := startServer(t)

	input := strings.NewReader("hello\n\n/ping\n/clear\nagain\n/quit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, Chat(context.Background(), ClientOptions{URL: url, SessionID: "cli"}, input, &out))

	text := out.String()
	assert.Contains(t, text, "[processing] Processing your message...")
	assert.Contains(t, text, "\n(dry run) hello\n")
	assert.Contains(t, text, "pong\n")
	assert.Contains(t, text, "History cleared for session cli")
	assert.Contains(t, text, "\n(dry run) again\n")
	assert.NotContains(t, text, "ignored")

	sess, ok := app.Sessions.Get("cli")
	require.True(t, ok)
	assert.Len(t, sess.History(), 2)
}

func TestListTools(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ListTools(&out, false))
	for _, name := range []string{"create_schedule", "list_schedules", "update_schedule", "delete_schedule", "askUserQuestion"} {
		assert.Contains(t, out.String(), "  "+name+"\n")
	}
	assert.NotContains(t, out.String(), "Parameters:")

	out.Reset()
	require.NoError(t, ListTools(&out, true))
	assert.Contains(t, out.String(), "Parameters:")
	assert.Contains(t, out.String(), "title*: string")
	assert.Contains(t, out.String(), "datetime_str*: string")
}

func TestDescribeParameters(t *testing.T) {
	lines := describeParameters(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"b": map[string]any{"type": "integer"},
			"a": map[string]any{"type": "string", "description": "first"},
		},
		"required": []any{"a"},
	})
	assert.Equal(t, []string{"a*: string - first", "b: integer"}, lines)
	assert.Nil(t, describeParameters(map[string]any{"type": "object"}))
}

func TestLoadSettingsProviderOverride(t *testing.T) {
	t.Setenv(config.ConfigPathEnv, "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("MODEL_NAME", "")
	t.Setenv("ANTHROPIC_MODEL", "")

	s, err := LoadSettings(Options{Provider: "claude", Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", s.LLM.Model)
	assert.Equal(t, "debug", s.Logging.Level)

	_, err = LoadSettings(Options{Provider: "nope"})
	assert.ErrorIs(t, err, config.ErrUnknownProvider)
}

func TestFormatFrame(t *testing.T) {
	_, show := formatFrame(server.Incoming{Frame: server.Frame{Type: server.FrameLLMChunk, Content: "4", Final: true}})
	assert.False(t, show)

	text, show := formatFrame(server.Incoming{Frame: server.Frame{Type: server.FrameToolCall, Phase: server.PhaseResult,
		ToolCall: &server.ToolCallFrame{Name: "list_schedules", Result: "boom", IsError: true}}})
	assert.True(t, show)
	assert.Equal(t, "[tool] list_schedules error: boom\n", text)
}
