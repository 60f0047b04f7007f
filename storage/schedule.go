// Package storage provides schedule record storage.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Record id generation and timestamp layouts kept in one place

package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Timestamp layouts used for every record field.
const (
	DatetimeLayout  = "2006-01-02 15:04"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Schedule statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// ErrScheduleNotFound is returned when no record has the requested id.
var ErrScheduleNotFound = errors.New("schedule not found")

// Schedule is a calendar entry with an optional reminder.
type Schedule struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Datetime        string `json:"datetime"`
	Description     string `json:"description"`
	ReminderMinutes int    `json:"reminder_minutes"`
	Repeat          string `json:"repeat"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at,omitempty"`
	Notified        bool   `json:"notified"`
	NotifiedAt      string `json:"notified_at,omitempty"`
}

// ScheduleStorage defines the interface for persisting schedules.
type ScheduleStorage interface {
	// Create stores a new schedule. The ID must be unique.
	Create(ctx context.Context, s Schedule) error

	// Get returns the schedule with the given id or ErrScheduleNotFound.
	Get(ctx context.Context, id string) (Schedule, error)

	// List returns schedules ordered by datetime. An empty status or "all"
	// returns every schedule.
	List(ctx context.Context, status string) ([]Schedule, error)

	// Update replaces a stored schedule, matched by ID.
	Update(ctx context.Context, s Schedule) error

	// Delete removes a schedule and returns what was removed.
	Delete(ctx context.Context, id string) (Schedule, error)

	// Pending returns active schedules that have not been notified yet.
	Pending(ctx context.Context) ([]Schedule, error)

	// MarkNotified flags a schedule as notified at the given timestamp.
	MarkNotified(ctx context.Context, id, at string) error

	// Close releases storage resources.
	Close() error
}

// NewScheduleID returns a short random identifier.
func NewScheduleID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func matchesStatus(s Schedule, status string) bool {
	return status == "" || status == "all" || s.Status == status
}
