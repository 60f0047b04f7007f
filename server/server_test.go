package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/richinex/tablecopilot/agent"
	"github.com/richinex/tablecopilot/event"
	"github.com/richinex/tablecopilot/gateway"
	"github.com/richinex/tablecopilot/llm"
	"github.com/richinex/tablecopilot/model"
	"github.com/richinex/tablecopilot/notifier"
	"github.com/richinex/tablecopilot/observability"
	"github.com/richinex/tablecopilot/orchestration"
	"github.com/richinex/tablecopilot/session"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker starts in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type echoDispatcher struct{}

func (echoDispatcher) Dispatch(_ context.Context, req event.ToolCallRequest) event.ToolCallResult {
	return event.ToolCallResult{CallID: req.ID, Name: req.Name, Text: `{"tool":"` + req.Name + `","success":true}`}
}

type fixture struct {
	server *Server
	http   *httptest.Server
	script *gateway.Script
}

func newFixture(t *testing.T, script *gateway.Script) *fixture {
	t.Helper()
	f := newFixtureWith(t, script)
	f.script = script
	return f
}

func newFixtureWith(t *testing.T, gw gateway.Gateway) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := session.NewStore(func(string) agent.Config {
		cfg := agent.DefaultConfig()
		cfg.SystemPrompt = "sys"
		cfg.Tools = []llm.ToolDefinition{{Name: "list_schedules", Parameters: map[string]any{"type": "object"}}}
		return cfg
	}, logger)
	metrics := observability.NewMetrics()
	orch := orchestration.New(store, gw, echoDispatcher{}, logger, orchestration.WithMetrics(metrics))

	s := New(Config{Host: "127.0.0.1"}, orch, metrics, logger)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Close(ctx))
	})
	return &fixture{server: s, http: hs}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })

	hello := readFrame(t, ws)
	require.Equal(t, FrameConnection, hello.Type)
	assert.Equal(t, "connected", hello.Status)
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Incoming {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var in Incoming
	require.NoError(t, ws.ReadJSON(&in))
	return in
}

func send(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func TestMessageTurn(t *testing.T) {
	f := newFixture(t, gateway.Replies(gateway.Reply{Text: "4"}))
	ws := f.dial(t)

	send(t, ws, `{"type":"message","content":"What is 2+2?","session_id":"s1"}`)

	status := readFrame(t, ws)
	assert.Equal(t, FrameStatus, status.Type)
	assert.Equal(t, "processing", status.Status)
	assert.Equal(t, "Processing your message...", status.Message)

	chunk := readFrame(t, ws)
	assert.Equal(t, FrameLLMChunk, chunk.Type)
	assert.Equal(t, event.ChannelLLM, chunk.Category)
	assert.True(t, chunk.Final)
	assert.Equal(t, "4", chunk.Content)

	resp := readFrame(t, ws)
	assert.Equal(t, FrameResponse, resp.Type)
	assert.Equal(t, "4", resp.Content)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Empty(t, resp.Thoughts)
	assert.Empty(t, resp.ToolCalls)
}

func TestResponseEncodesEmptyLists(t *testing.T) {
	data, err := json.Marshal(ResponseFrame{Type: FrameResponse, TurnResult: model.NewTurnResult("4", nil, nil), SessionID: "s1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","content":"4","thoughts":[],"tool_calls":[],"session_id":"s1"}`, string(data))
}

func TestToolTurnStreamsEvents(t *testing.T) {
	f := newFixture(t, gateway.Replies(
		gateway.Reply{Reasoning: "look it up", ToolCalls: []event.ToolCallRequest{
			{ID: "c1", Name: "list_schedules", Arguments: json.RawMessage(`{}`)},
		}},
		gateway.Reply{Text: "Nothing planned."},
	))
	ws := f.dial(t)

	send(t, ws, `{"content":"what is on today?"}`)

	var types []string
	var last Incoming
	for {
		in := readFrame(t, ws)
		label := in.Type
		if in.Phase != "" {
			label += ":" + in.Phase
		}
		types = append(types, label)
		if in.Type == FrameResponse {
			last = in
			break
		}
	}
	assert.Equal(t, []string{
		"status", "thought", "tool_call:request", "tool_call:result", "llm_chunk", "response",
	}, types)

	assert.Equal(t, "Nothing planned.", last.Content)
	require.Len(t, last.ToolCalls, 1)
	assert.Equal(t, model.ToolCallCompleted, last.ToolCalls[0].Status)
	require.Len(t, last.Thoughts, 1)
	assert.Contains(t, last.SessionID, "127.0.0.1:")
}

func TestTurnErrorStillResponds(t *testing.T) {
	f := newFixture(t, &gateway.Script{Steps: []gateway.Step{{Err: errors.New("quota exceeded")}}})
	ws := f.dial(t)

	send(t, ws, `{"type":"message","content":"hi"}`)
	assert.Equal(t, FrameStatus, readFrame(t, ws).Type)
	resp := readFrame(t, ws)
	assert.Equal(t, FrameResponse, resp.Type)
	assert.True(t, strings.HasPrefix(resp.Content, "Error: "), resp.Content)
	assert.Contains(t, resp.Content, "quota exceeded")

	send(t, ws, `{"type":"ping"}`)
	assert.Equal(t, FramePong, readFrame(t, ws).Type)
}

func TestClientErrorsKeepConnectionOpen(t *testing.T) {
	f := newFixture(t, gateway.Replies())
	ws := f.dial(t)

	send(t, ws, `{not json`)
	in := readFrame(t, ws)
	assert.Equal(t, FrameError, in.Type)
	assert.True(t, strings.HasPrefix(in.Message, "Invalid JSON format: "), in.Message)

	send(t, ws, `{"type":"message","content":""}`)
	assert.Equal(t, "Message content is required", readFrame(t, ws).Message)

	send(t, ws, `{"type":"dance"}`)
	assert.Equal(t, "Unknown message type: dance", readFrame(t, ws).Message)

	send(t, ws, `{"type":"clear_history","session_id":"s9"}`)
	in = readFrame(t, ws)
	assert.Equal(t, FrameStatus, in.Type)
	assert.Equal(t, "success", in.Status)
	assert.Equal(t, "History cleared for session s9", in.Message)

	send(t, ws, `{"type":"ping"}`)
	assert.Equal(t, FramePong, readFrame(t, ws).Type)
	assert.Empty(t, f.script.Requests())
}

func TestNotifyBroadcasts(t *testing.T) {
	f := newFixture(t, gateway.Replies())
	a := f.dial(t)
	b := f.dial(t)
	assert.Equal(t, 2, f.server.Connections())

	require.NoError(t, f.server.Notify(context.Background(), notifier.Notification{
		ScheduleID: "abc", Title: "Reminder: Standup", Message: "2030-03-15 09:00 (reminder 15 minutes ahead)",
	}))

	for _, ws := range []*websocket.Conn{a, b} {
		in := readFrame(t, ws)
		assert.Equal(t, FrameNotification, in.Type)
		assert.Equal(t, "Reminder: Standup", in.Title)
		assert.Equal(t, "abc", in.ScheduleID)
	}
}

// heldGateway answers each round only after release is closed.
type heldGateway struct {
	started chan struct{}
	release chan struct{}
}

func (g *heldGateway) Round(ctx context.Context, req gateway.Request, emit func(event.Event)) (gateway.Reply, error) {
	close(g.started)
	<-g.release
	reply := gateway.Reply{Text: "finally"}
	gateway.Announce(reply, req.Source, emit)
	return reply, nil
}

func TestCloseWaitsForInFlightTurn(t *testing.T) {
	gw := &heldGateway{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, gw)
	ws := f.dial(t)

	send(t, ws, `{"type":"message","content":"slow one","session_id":"s1"}`)
	assert.Equal(t, "processing", readFrame(t, ws).Status)
	<-gw.started

	closed := make(chan error, 1)
	go func() { closed <- f.server.Close(context.Background()) }()

	select {
	case err := <-closed:
		t.Fatalf("Close returned before the turn finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.release)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the turn finished")
	}
	assert.Equal(t, 0, f.server.Connections())

	// New clients are refused once closed.
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/"
	late, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}

func TestCloseTimesOut(t *testing.T) {
	gw := &heldGateway{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, gw)
	ws := f.dial(t)

	send(t, ws, `{"type":"message","content":"slow one"}`)
	<-gw.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.server.Close(ctx), context.DeadlineExceeded)
	close(gw.release)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, gateway.Replies())
	f.dial(t)

	body := get(t, f.http.URL+"/healthz")
	assert.Equal(t, "ok 1\n", body)

	body = get(t, f.http.URL+"/metrics")
	assert.Contains(t, body, "tablecopilot_active_connections 1")
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestEventFrame(t *testing.T) {
	_, ok := EventFrame(event.TurnComplete{})
	assert.False(t, ok)

	f, ok := EventFrame(event.ToolSummary{Text: "done", Source: "assistant"})
	require.True(t, ok)
	assert.Equal(t, FrameToolCall, f.Type)
	assert.Equal(t, PhaseSummary, f.Phase)
	assert.Equal(t, event.ChannelTool, f.Category)

	f, ok = EventFrame(event.TextDelta{Text: "par"})
	require.True(t, ok)
	assert.Equal(t, FrameLLMChunk, f.Type)
	assert.False(t, f.Final)
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "localhost:8765", Config{Host: "localhost", Port: 8765}.Addr())
}
