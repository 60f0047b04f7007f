package answer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/tablecopilot/answer"
	"github.com/richinex/tablecopilot/event"
)

const me = "assistant"

func envelope(events ...event.Event) event.TurnComplete {
	return event.TurnComplete{Events: events}
}

func TestExtract_Tiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []event.Event
		want   string
		tier   answer.Tier
	}{
		{
			name:   "last tagged final text",
			events: []event.Event{event.Reasoning{Text: "thinking", Source: me}, event.FinalText{Text: "T", Source: me}},
			want:   "T",
			tier:   answer.TierTagged,
		},
		{
			name: "tagged final text before terminal envelope",
			events: []event.Event{
				event.FinalText{Text: "T", Source: me},
				envelope(event.FinalText{Text: "T", Source: me}),
			},
			want: "T",
			tier: answer.TierTagged,
		},
		{
			name: "tagged tool summary wins over earlier text",
			events: []event.Event{
				event.FinalText{Text: "early", Source: me},
				event.ToolSummary{Text: "late", Source: me},
			},
			want: "late",
			tier: answer.TierTagged,
		},
		{
			name: "reasoning is never the answer",
			events: []event.Event{
				event.FinalText{Text: "answer", Source: me},
				event.Reasoning{Text: "afterthought", Source: me},
			},
			want: "answer",
			tier: answer.TierTagged,
		},
		{
			name: "only inside envelope",
			events: []event.Event{
				event.ToolCallRequest{ID: "1", Name: "list_schedules"},
				envelope(event.Reasoning{Text: "r", Source: me}, event.FinalText{Text: "T", Source: me}),
			},
			want: "T",
			tier: answer.TierEnvelope,
		},
		{
			name: "differently labelled agent",
			events: []event.Event{
				event.FinalText{Text: "from someone else", Source: "planner"},
				envelope(),
			},
			want: "from someone else",
			tier: answer.TierAnyText,
		},
		{
			name: "differently labelled agent inside envelope",
			events: []event.Event{
				envelope(event.FinalText{Text: "inner other", Source: "renamed"}),
			},
			want: "inner other",
			tier: answer.TierAnyText,
		},
		{
			name: "blank tagged text falls through",
			events: []event.Event{
				event.FinalText{Text: "real", Source: "other"},
				event.FinalText{Text: "   ", Source: me},
			},
			want: "real",
			tier: answer.TierAnyText,
		},
		{
			name: "tool messages when nothing else",
			events: []event.Event{
				event.ToolCallRequest{ID: "1", Name: "create_schedule"},
				event.ToolCallResult{CallID: "1", Name: "create_schedule", Text: `{"tool":"create_schedule","success":true,"message":"Done."}`},
				envelope(),
			},
			want: "Done.",
			tier: answer.TierToolMessages,
		},
		{
			name: "generic executed label without message",
			events: []event.Event{
				event.ToolCallResult{CallID: "1", Name: "list_schedules", Text: `{"tool":"list_schedules","success":true}`},
				event.ToolCallResult{CallID: "2", Name: "delete_schedule", Text: `{"tool":"delete_schedule","success":false,"error":"nope"}`},
			},
			want: "executed list_schedules",
			tier: answer.TierToolMessages,
		},
		{
			name: "placeholder when everything failed",
			events: []event.Event{
				event.ToolCallResult{CallID: "1", Name: "x", Text: "panic", IsError: true},
				envelope(),
			},
			want: answer.Placeholder,
			tier: answer.TierPlaceholder,
		},
	}

	x := answer.New(me)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := x.Extract(tt.events)
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, tt.tier, got.Tier)
		})
	}
}

func TestExtract_NeverEmpty(t *testing.T) {
	t.Parallel()

	x := answer.New(me)
	sequences := [][]event.Event{
		{event.TurnComplete{}},
		{event.ToolCallRequest{ID: "1", Name: "a"}},
		{event.ToolCallRequest{ID: "1", Name: "a"}, event.ToolCallResult{CallID: "1", Name: "a", Text: ""}},
		{event.ToolCallRequest{ID: "1", Name: "a"}, event.ToolCallResult{CallID: "1", Name: "a", Text: "not json"}},
		{event.TextDelta{Text: "partial"}},
		{event.ToolSummary{Text: "", Source: me}},
	}
	for i, seq := range sequences {
		got := x.Extract(seq)
		assert.NotEmpty(t, strings.TrimSpace(got.Text), "sequence %d", i)
	}
}

func TestExtract_CustomPlaceholder(t *testing.T) {
	t.Parallel()

	x := &answer.Extractor{AssistantSource: me, Placeholder: "nothing to say"}
	got := x.Extract([]event.Event{event.TurnComplete{}})
	assert.Equal(t, "nothing to say", got.Text)
}

func TestExtract_DisplayBlocks(t *testing.T) {
	t.Parallel()

	question := `{"tool":"askUserQuestion","success":true,"message":"clarification question generated","data":{"markdown":"**Which day?**\n\n- A. Monday\n- B. Tuesday"}}`

	t.Run("appended when absent", func(t *testing.T) {
		t.Parallel()
		x := answer.New(me)
		got := x.Extract([]event.Event{
			event.ToolCallResult{CallID: "q", Name: "askUserQuestion", Text: question},
			event.FinalText{Text: "Let me ask.", Source: me},
		})
		require.Equal(t, answer.TierTagged, got.Tier)
		assert.Equal(t, "Let me ask.\n\n**Which day?**\n\n- A. Monday\n- B. Tuesday", got.Text)
	})

	t.Run("not duplicated when already echoed", func(t *testing.T) {
		t.Parallel()
		x := answer.New(me)
		text := "Please choose:\n**Which day?**\n\n- A. Monday\n- B. Tuesday"
		got := x.Extract([]event.Event{
			event.ToolCallResult{CallID: "q", Name: "askUserQuestion", Text: question},
			event.FinalText{Text: text, Source: me},
		})
		assert.Equal(t, text, got.Text)
	})

	t.Run("excluded tools are skipped", func(t *testing.T) {
		t.Parallel()
		x := answer.New(me, "askUserQuestion")
		got := x.Extract([]event.Event{
			event.ToolCallResult{CallID: "q", Name: "askUserQuestion", Text: question},
			event.FinalText{Text: "Let me ask.", Source: me},
		})
		assert.Equal(t, "Let me ask.", got.Text)
	})

	t.Run("error results are skipped", func(t *testing.T) {
		t.Parallel()
		x := answer.New(me)
		got := x.Extract([]event.Event{
			event.ToolCallResult{CallID: "q", Name: "askUserQuestion", Text: question, IsError: true},
			event.FinalText{Text: "Let me ask.", Source: me},
		})
		assert.Equal(t, "Let me ask.", got.Text)
	})

	t.Run("summary results count once", func(t *testing.T) {
		t.Parallel()
		x := answer.New(me)
		res := event.ToolCallResult{CallID: "q", Name: "askUserQuestion", Text: question}
		got := x.Extract([]event.Event{
			res,
			event.ToolSummary{Text: "asked", Source: me, Results: []event.ToolCallResult{res}},
		})
		assert.Equal(t, 1, strings.Count(got.Text, "**Which day?**"))
	})
}

func TestTierString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "envelope", answer.TierEnvelope.String())
	assert.Equal(t, "unknown", answer.Tier(99).String())
}
