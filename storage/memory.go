// Package storage provides in-memory schedule storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral runs

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStorage implements ScheduleStorage using an in-memory map.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		schedules: make(map[string]Schedule),
	}
}

// Create stores a new schedule.
func (s *InMemoryStorage) Create(ctx context.Context, sched Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; exists {
		return fmt.Errorf("schedule %q already exists", sched.ID)
	}
	s.schedules[sched.ID] = sched
	return nil
}

// Get returns a schedule by id.
func (s *InMemoryStorage) Get(ctx context.Context, id string) (Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	return sched, nil
}

// List returns schedules filtered by status, ordered by datetime.
func (s *InMemoryStorage) List(ctx context.Context, status string) ([]Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		if matchesStatus(sched, status) {
			out = append(out, sched)
		}
	}
	sortByDatetime(out)
	return out, nil
}

// Update replaces a stored schedule.
func (s *InMemoryStorage) Update(ctx context.Context, sched Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[sched.ID]; !ok {
		return ErrScheduleNotFound
	}
	s.schedules[sched.ID] = sched
	return nil
}

// Delete removes a schedule.
func (s *InMemoryStorage) Delete(ctx context.Context, id string) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return Schedule{}, ErrScheduleNotFound
	}
	delete(s.schedules, id)
	return sched, nil
}

// Pending returns active, not yet notified schedules.
func (s *InMemoryStorage) Pending(ctx context.Context) ([]Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Schedule
	for _, sched := range s.schedules {
		if sched.Status == StatusActive && !sched.Notified {
			out = append(out, sched)
		}
	}
	sortByDatetime(out)
	return out, nil
}

// MarkNotified flags a schedule as notified.
func (s *InMemoryStorage) MarkNotified(ctx context.Context, id, at string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return ErrScheduleNotFound
	}
	sched.Notified = true
	sched.NotifiedAt = at
	s.schedules[id] = sched
	return nil
}

// Close is a no-op.
func (s *InMemoryStorage) Close() error {
	return nil
}

// Datetimes share one fixed-width layout, so lexical order is time order.
func sortByDatetime(list []Schedule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Datetime == list[j].Datetime {
			return list[i].ID < list[j].ID
		}
		return list[i].Datetime < list[j].Datetime
	})
}

// Verify InMemoryStorage implements ScheduleStorage
var _ ScheduleStorage = (*InMemoryStorage)(nil)
