// Package session keeps per-session agent configuration and history.
//
// Information Hiding:
// - Keyed storage with per-key insert-if-absent
// - History copy-out so callers never share the backing slice
// - Configuration construction delegated to a factory at creation time
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/agent"
	"github.com/richinex/tablecopilot/model"
)

// ErrEmptySessionID is returned for a blank session id.
var ErrEmptySessionID = errors.New("session id is required")

// Factory builds the agent configuration for a new session. It runs once
// per session generation, so a prompt rendered here reflects creation time.
type Factory func(id string) agent.Config

// Session is one conversation. Its configuration is fixed at creation.
type Session struct {
	ID        string
	Config    agent.Config
	CreatedAt time.Time

	mu      sync.Mutex
	history []model.HistoryEntry
}

// History returns a copy of the conversation so far.
func (s *Session) History() []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Append records one completed exchange.
func (s *Session) Append(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		model.HistoryEntry{Role: model.RoleUser, Content: user},
		model.HistoryEntry{Role: model.RoleAssistant, Content: assistant},
	)
}

// Len returns the number of history entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Store maps session ids to sessions. Distinct ids never contend.
type Store struct {
	sessions sync.Map // string -> *Session
	factory  Factory
	now      func() time.Time
	logger   *zap.Logger
}

// NewStore creates a store. A nil factory yields agent.DefaultConfig.
func NewStore(factory Factory, logger *zap.Logger) *Store {
	if factory == nil {
		factory = func(string) agent.Config { return agent.DefaultConfig() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{factory: factory, now: time.Now, logger: logger}
}

// GetOrCreate returns the session for id, creating it on first use. Later
// calls return the same session with its accumulated history.
func (s *Store) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	if v, ok := s.sessions.Load(id); ok {
		return v.(*Session), nil
	}

	fresh := &Session{ID: id, Config: s.factory(id), CreatedAt: s.now()}
	v, loaded := s.sessions.LoadOrStore(id, fresh)
	if !loaded {
		s.logger.Info("session created", zap.String("session_id", id))
	}
	return v.(*Session), nil
}

// Get returns an existing session.
func (s *Store) Get(id string) (*Session, bool) {
	v, ok := s.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Clear drops the session's configuration and history. It reports whether
// a session existed.
func (s *Store) Clear(id string) bool {
	_, existed := s.sessions.LoadAndDelete(id)
	if existed {
		s.logger.Info("session cleared", zap.String("session_id", id))
	}
	return existed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// IDs returns the live session ids in sorted order.
func (s *Store) IDs() []string {
	var ids []string
	s.sessions.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}
