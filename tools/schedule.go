// Schedule record tools: create, list, update and delete.
//
// Information Hiding:
// - Datetime parsing and validation rules
// - Record defaults (reminder lead time, repeat, status)
// - Mapping of storage failures onto failed envelopes

package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/tablecopilot/storage"
)

// Tool names.
const (
	CreateScheduleName = "create_schedule"
	ListSchedulesName  = "list_schedules"
	UpdateScheduleName = "update_schedule"
	DeleteScheduleName = "delete_schedule"
)

const (
	defaultReminderMinutes = 15
	defaultListLimit       = 10
)

var validRepeats = []string{"once", "daily", "weekly", "monthly"}

// Clock returns the current time.
type Clock func() time.Time

// Scheduler holds what the schedule tools share.
type Scheduler struct {
	store storage.ScheduleStorage
	now   Clock
}

// NewScheduler creates schedule tools over store. A nil clock uses time.Now.
func NewScheduler(store storage.ScheduleStorage, now Clock) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{store: store, now: now}
}

// CreateScheduleArgs are the arguments of create_schedule.
type CreateScheduleArgs struct {
	Title           string `json:"title" jsonschema_description:"Short title describing the schedule"`
	DatetimeStr     string `json:"datetime_str" jsonschema_description:"Time of the schedule in YYYY-MM-DD HH:MM format such as 2030-03-15 14:30"`
	Description     string `json:"description,omitempty" jsonschema_description:"Optional longer description"`
	ReminderMinutes *int   `json:"reminder_minutes,omitempty" jsonschema:"minimum=0,default=15" jsonschema_description:"Minutes before the schedule to send a reminder"`
	Repeat          string `json:"repeat,omitempty" jsonschema:"enum=once,enum=daily,enum=weekly,enum=monthly,default=once" jsonschema_description:"How often the schedule repeats"`
}

// ListSchedulesArgs are the arguments of list_schedules.
type ListSchedulesArgs struct {
	Status string `json:"status,omitempty" jsonschema:"enum=all,enum=active,enum=completed,default=active" jsonschema_description:"Filter by status"`
	Limit  int    `json:"limit,omitempty" jsonschema:"minimum=1,default=10" jsonschema_description:"Maximum number of schedules to return"`
}

// UpdateScheduleArgs are the arguments of update_schedule.
type UpdateScheduleArgs struct {
	ScheduleID      string  `json:"schedule_id" jsonschema_description:"ID of the schedule to update"`
	Title           *string `json:"title,omitempty" jsonschema_description:"New title"`
	DatetimeStr     *string `json:"datetime_str,omitempty" jsonschema_description:"New time in YYYY-MM-DD HH:MM format"`
	Description     *string `json:"description,omitempty" jsonschema_description:"New description"`
	ReminderMinutes *int    `json:"reminder_minutes,omitempty" jsonschema:"minimum=0" jsonschema_description:"New reminder lead time in minutes"`
	Status          *string `json:"status,omitempty" jsonschema:"enum=active,enum=completed" jsonschema_description:"New status"`
}

// DeleteScheduleArgs are the arguments of delete_schedule.
type DeleteScheduleArgs struct {
	ScheduleID string `json:"schedule_id" jsonschema_description:"ID of the schedule to delete"`
}

// Tools returns the four schedule tools.
func (s *Scheduler) Tools() ([]Tool, error) {
	create, err := NewTypedTool(CreateScheduleName,
		"Create a new schedule reminder for meetings, alarms or tasks. Returns a JSON envelope.", s.Create)
	if err != nil {
		return nil, err
	}
	list, err := NewTypedTool(ListSchedulesName,
		"List existing schedules filtered by status and count. Returns a JSON envelope.", s.List)
	if err != nil {
		return nil, err
	}
	update, err := NewTypedTool(UpdateScheduleName,
		"Update the title, time, description, reminder or status of an existing schedule. Returns a JSON envelope.", s.Update)
	if err != nil {
		return nil, err
	}
	del, err := NewTypedTool(DeleteScheduleName,
		"Delete the schedule with the given ID. Returns a JSON envelope.", s.Delete)
	if err != nil {
		return nil, err
	}
	return []Tool{create, list, update, del}, nil
}

// Create stores a new schedule.
func (s *Scheduler) Create(ctx context.Context, args CreateScheduleArgs) Envelope {
	now := s.now()
	when, err := parseDatetime(args.DatetimeStr, now.Location())
	if err != nil {
		return Fail(CreateScheduleName,
			"invalid datetime format, use YYYY-MM-DD HH:MM (for example 2030-03-15 14:30): %v", err)
	}

	repeat := args.Repeat
	if repeat == "" {
		repeat = "once"
	}
	if !contains(validRepeats, repeat) {
		return Fail(CreateScheduleName, "invalid repeat type '%s'; valid options: %s",
			repeat, strings.Join(validRepeats, ", "))
	}
	if repeat == "once" && when.Before(now) {
		return Fail(CreateScheduleName,
			"the time %s has already passed, please choose a future time", args.DatetimeStr)
	}

	reminder := defaultReminderMinutes
	if args.ReminderMinutes != nil {
		reminder = *args.ReminderMinutes
	}

	sched := storage.Schedule{
		ID:              storage.NewScheduleID(),
		Title:           args.Title,
		Datetime:        when.Format(storage.DatetimeLayout),
		Description:     args.Description,
		ReminderMinutes: reminder,
		Repeat:          repeat,
		Status:          storage.StatusActive,
		CreatedAt:       now.Format(storage.TimestampLayout),
	}
	if err := s.store.Create(ctx, sched); err != nil {
		return Fail(CreateScheduleName, "failed to create schedule: %v", err)
	}
	return Succeed(CreateScheduleName, "schedule created", map[string]any{"schedule": sched})
}

// List returns schedules ordered by time.
func (s *Scheduler) List(ctx context.Context, args ListSchedulesArgs) Envelope {
	status := args.Status
	if status == "" {
		status = storage.StatusActive
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	all, err := s.store.List(ctx, "all")
	if err != nil {
		return Fail(ListSchedulesName, "failed to list schedules: %v", err)
	}
	data := func(list []storage.Schedule) map[string]any {
		if list == nil {
			list = []storage.Schedule{}
		}
		return map[string]any{"schedules": list, "status": status, "limit": limit}
	}
	if len(all) == 0 {
		return Succeed(ListSchedulesName, "there are no schedules", data(nil))
	}

	var filtered []storage.Schedule
	for _, sched := range all {
		if status == "all" || sched.Status == status {
			filtered = append(filtered, sched)
		}
	}
	if len(filtered) == 0 {
		return Succeed(ListSchedulesName, fmt.Sprintf("no schedules with status '%s'", status), data(nil))
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return Succeed(ListSchedulesName, fmt.Sprintf("returned %d schedules", len(filtered)), data(filtered))
}

// Update changes the provided fields of a schedule.
func (s *Scheduler) Update(ctx context.Context, args UpdateScheduleArgs) Envelope {
	sched, err := s.store.Get(ctx, args.ScheduleID)
	if errors.Is(err, storage.ErrScheduleNotFound) {
		return Fail(UpdateScheduleName,
			"no schedule with id '%s'; use list_schedules to see existing ids", args.ScheduleID)
	}
	if err != nil {
		return Fail(UpdateScheduleName, "failed to load schedule: %v", err)
	}

	now := s.now()
	var updated []string
	if args.Title != nil {
		sched.Title = *args.Title
		updated = append(updated, "title -> "+*args.Title)
	}
	if args.DatetimeStr != nil {
		when, err := parseDatetime(*args.DatetimeStr, now.Location())
		if err != nil {
			return Fail(UpdateScheduleName, "invalid datetime format, use YYYY-MM-DD HH:MM")
		}
		sched.Datetime = when.Format(storage.DatetimeLayout)
		sched.Notified = false
		sched.NotifiedAt = ""
		updated = append(updated, "datetime -> "+sched.Datetime)
	}
	if args.Description != nil {
		sched.Description = *args.Description
		updated = append(updated, "description -> <updated>")
	}
	if args.ReminderMinutes != nil {
		sched.ReminderMinutes = *args.ReminderMinutes
		updated = append(updated, fmt.Sprintf("reminder_minutes -> %d", *args.ReminderMinutes))
	}
	if args.Status != nil {
		if *args.Status != storage.StatusActive && *args.Status != storage.StatusCompleted {
			return Fail(UpdateScheduleName, "invalid status; valid options: active, completed")
		}
		sched.Status = *args.Status
		updated = append(updated, "status -> "+*args.Status)
	}
	if len(updated) == 0 {
		return Fail(UpdateScheduleName, "no fields to update were provided")
	}

	sched.UpdatedAt = now.Format(storage.TimestampLayout)
	if err := s.store.Update(ctx, sched); err != nil {
		return Fail(UpdateScheduleName, "failed to update schedule: %v", err)
	}
	return Succeed(UpdateScheduleName, "schedule updated",
		map[string]any{"schedule": sched, "updated_fields": updated})
}

// Delete removes a schedule.
func (s *Scheduler) Delete(ctx context.Context, args DeleteScheduleArgs) Envelope {
	deleted, err := s.store.Delete(ctx, args.ScheduleID)
	if errors.Is(err, storage.ErrScheduleNotFound) {
		return Fail(DeleteScheduleName,
			"no schedule with id '%s'; use list_schedules to see existing ids", args.ScheduleID)
	}
	if err != nil {
		return Fail(DeleteScheduleName, "failed to delete schedule: %v", err)
	}
	return Succeed(DeleteScheduleName, "schedule deleted", map[string]any{"deleted_schedule": deleted})
}

func parseDatetime(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(storage.DatetimeLayout, strings.TrimSpace(value), loc)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
