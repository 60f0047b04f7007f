package event

import (
	"strings"

	"github.com/richinex/tablecopilot/model"
)

// Ledger accumulates thoughts and tool-call records from an ordered stream.
// It is not safe for concurrent use; one turn owns one ledger.
type Ledger struct {
	thoughts []model.Thought
	order    []string
	calls    map[string]*model.ToolCallRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{calls: make(map[string]*model.ToolCallRecord)}
}

// Observe folds one event into the ledger. TurnComplete envelopes are
// ignored: their contents were already observed as they were emitted.
func (l *Ledger) Observe(e Event) {
	switch v := e.(type) {
	case Reasoning:
		if strings.TrimSpace(v.Text) != "" {
			l.thoughts = append(l.thoughts, model.Thought{Content: v.Text, Source: v.Source})
		}
	case ToolCallRequest:
		l.request(v)
	case ToolCallResult:
		l.result(v)
	case ToolSummary:
		for _, c := range v.Calls {
			if _, ok := l.calls[c.ID]; !ok {
				l.request(c)
			}
		}
		for _, r := range v.Results {
			if rec, ok := l.calls[r.CallID]; ok && rec.Status == model.ToolCallPending {
				l.result(r)
			}
		}
	}
}

func (l *Ledger) request(r ToolCallRequest) {
	if _, ok := l.calls[r.ID]; ok {
		return
	}
	l.order = append(l.order, r.ID)
	l.calls[r.ID] = &model.ToolCallRecord{
		ID:        r.ID,
		Name:      r.Name,
		Arguments: r.Arguments,
		Status:    model.ToolCallPending,
	}
}

// result completes a pending record; results for unknown ids are dropped.
func (l *Ledger) result(r ToolCallResult) {
	rec, ok := l.calls[r.CallID]
	if !ok {
		return
	}
	rec.Result = r.Text
	rec.IsError = r.IsError
	if r.IsError {
		rec.Status = model.ToolCallError
	} else {
		rec.Status = model.ToolCallCompleted
	}
}

// Thoughts returns the captured reasoning entries in order.
func (l *Ledger) Thoughts() []model.Thought {
	out := make([]model.Thought, len(l.thoughts))
	copy(out, l.thoughts)
	return out
}

// ToolCalls returns the records in request order.
func (l *Ledger) ToolCalls() []model.ToolCallRecord {
	out := make([]model.ToolCallRecord, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.calls[id])
	}
	return out
}
