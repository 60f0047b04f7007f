// Package answer resolves the authoritative reply text of a finished turn.
//
// Information Hiding:
// - The order in which fallback tiers are tried
// - How tool envelopes are inspected for messages and display blocks
// - The placeholder used when nothing usable was produced

package answer

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/richinex/tablecopilot/event"
)

// Placeholder is returned when a turn produced no usable text at all.
const Placeholder = "I apologize, but I couldn't generate a response."

// Tier records which fallback produced an answer.
type Tier int

const (
	TierTagged Tier = iota + 1
	TierBeforeLast
	TierEnvelope
	TierAnyText
	TierToolMessages
	TierPlaceholder
)

// String returns a short label suitable for metrics.
func (t Tier) String() string {
	switch t {
	case TierTagged:
		return "tagged"
	case TierBeforeLast:
		return "before_last"
	case TierEnvelope:
		return "envelope"
	case TierAnyText:
		return "any_text"
	case TierToolMessages:
		return "tool_messages"
	case TierPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of extraction.
type Resolution struct {
	Text string
	Tier Tier
}

// Extractor turns the ordered events of one turn into exactly one answer.
type Extractor struct {
	// AssistantSource is the source tag of the answering agent.
	AssistantSource string

	// ExcludeDisplay lists tools whose display block the model is expected
	// to echo itself; their blocks are never appended.
	ExcludeDisplay []string

	// Placeholder overrides the apology text when set.
	Placeholder string
}

// New creates an extractor for the given agent name.
func New(assistantSource string, excludeDisplay ...string) *Extractor {
	return &Extractor{AssistantSource: assistantSource, ExcludeDisplay: excludeDisplay}
}

// Extract resolves events to a non-empty answer and appends any display
// blocks carried by successful tool results.
func (x *Extractor) Extract(events []event.Event) Resolution {
	res := x.resolve(events)
	res.Text = x.augment(res.Text, events)
	return res
}

func (x *Extractor) resolve(events []event.Event) Resolution {
	if text, ok := x.scanTagged(events); ok {
		return Resolution{Text: text, Tier: TierTagged}
	}
	if len(events) >= 2 {
		if text, ok := x.scanTagged(events[:len(events)-1]); ok {
			return Resolution{Text: text, Tier: TierBeforeLast}
		}
	}
	inner := envelopeOf(events)
	if inner != nil {
		if text, ok := x.scanTagged(inner); ok {
			return Resolution{Text: text, Tier: TierEnvelope}
		}
	}
	if text, ok := scanAny(events); ok {
		return Resolution{Text: text, Tier: TierAnyText}
	}
	if text, ok := scanAny(inner); ok {
		return Resolution{Text: text, Tier: TierAnyText}
	}
	if text, ok := summarizeTools(events); ok {
		return Resolution{Text: text, Tier: TierToolMessages}
	}
	placeholder := x.Placeholder
	if placeholder == "" {
		placeholder = Placeholder
	}
	return Resolution{Text: placeholder, Tier: TierPlaceholder}
}

// scanTagged finds the last answer-bearing event from the assistant.
// Blank candidates do not resolve.
func (x *Extractor) scanTagged(events []event.Event) (string, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if !event.IsAnswerBearing(event.Classify(ev)) || event.Source(ev) != x.AssistantSource {
			continue
		}
		if text := event.Text(ev); strings.TrimSpace(text) != "" {
			return text, true
		}
	}
	return "", false
}

// scanAny ignores the source tag entirely.
func scanAny(events []event.Event) (string, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if !event.IsAnswerBearing(event.Classify(ev)) {
			continue
		}
		if text := event.Text(ev); strings.TrimSpace(text) != "" {
			return text, true
		}
	}
	return "", false
}

func envelopeOf(events []event.Event) []event.Event {
	if len(events) == 0 {
		return nil
	}
	if tc, ok := events[len(events)-1].(event.TurnComplete); ok {
		return tc.Events
	}
	return nil
}

// summarizeTools joins the messages of successful tool results.
func summarizeTools(events []event.Event) (string, bool) {
	var parts []string
	for _, r := range toolResults(events) {
		if r.IsError || !succeeded(r.Text) {
			continue
		}
		msg := strings.TrimSpace(gjson.Get(r.Text, "message").String())
		if msg == "" {
			msg = "executed " + r.Name
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

func (x *Extractor) augment(text string, events []event.Event) string {
	for _, r := range toolResults(events) {
		if r.IsError || x.excluded(r.Name) || !succeeded(r.Text) {
			continue
		}
		block := gjson.Get(r.Text, "data.markdown").String()
		if strings.TrimSpace(block) == "" || strings.Contains(text, block) {
			continue
		}
		text = strings.TrimRight(text, "\n") + "\n\n" + block
	}
	return text
}

func (x *Extractor) excluded(name string) bool {
	for _, n := range x.ExcludeDisplay {
		if n == name {
			return true
		}
	}
	return false
}

// succeeded reports whether a result text is a success envelope. Non-JSON
// text from a non-error result counts as success.
func succeeded(text string) bool {
	if !gjson.Valid(text) {
		return true
	}
	s := gjson.Get(text, "success")
	return !s.Exists() || s.Bool()
}

// toolResults flattens fine-grained results and summary results into one
// list, keeping the first result seen per call id. Events inside a terminal
// envelope are consulted only when the outer list has no results.
func toolResults(events []event.Event) []event.ToolCallResult {
	out := collectResults(events)
	if len(out) == 0 {
		out = collectResults(envelopeOf(events))
	}
	return out
}

func collectResults(events []event.Event) []event.ToolCallResult {
	seen := make(map[string]bool)
	var out []event.ToolCallResult
	add := func(r event.ToolCallResult) {
		if r.CallID != "" && seen[r.CallID] {
			return
		}
		seen[r.CallID] = true
		out = append(out, r)
	}
	for _, ev := range events {
		switch v := ev.(type) {
		case event.ToolCallResult:
			add(v)
		case event.ToolSummary:
			for _, r := range v.Results {
				add(r)
			}
		}
	}
	return out
}
