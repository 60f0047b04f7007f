package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/richinex/tablecopilot/event"
)

// ErrScriptExhausted is returned when a Script has no reply left.
var ErrScriptExhausted = errors.New("gateway script exhausted")

// Step is one scripted round: a reply, or an error to return instead.
type Step struct {
	Reply Reply
	Err   error
}

// Script is a deterministic Gateway. It plays Steps in order and then falls
// back to Then, if set. Every request is recorded.
type Script struct {
	Steps []Step
	Then  func(Request) Reply

	mu       sync.Mutex
	next     int
	requests []Request
}

// Replies builds a script that returns each reply in turn.
func Replies(replies ...Reply) *Script {
	s := &Script{}
	for _, r := range replies {
		s.Steps = append(s.Steps, Step{Reply: r})
	}
	return s
}

// Round plays the next step.
func (s *Script) Round(ctx context.Context, req Request, emit func(event.Event)) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	var (
		step Step
		ok   bool
	)
	if s.next < len(s.Steps) {
		step, ok = s.Steps[s.next], true
		s.next++
	}
	then := s.Then
	s.mu.Unlock()

	switch {
	case ok && step.Err != nil:
		return Reply{}, step.Err
	case ok:
	case then != nil:
		step.Reply = then(req)
	default:
		return Reply{}, ErrScriptExhausted
	}

	reply := settle(step.Reply, req.ToolsEnabled)
	if emit != nil {
		Announce(reply, req.Source, emit)
	}
	return reply, nil
}

// Requests returns the requests seen so far.
func (s *Script) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

var (
	_ Gateway = (*Script)(nil)
	_ Gateway = (*LLM)(nil)
)
