// Reminder Notifier.
//
// Periodically scans stored schedules and fires reminders whose lead
// time has been reached.
//
// Information Hiding:
// - Cron scheduling hidden behind Start/Stop
// - Due-time computation hidden
// - Fan-out to sinks hidden; a failing sink does not block the others

package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/observability"
	"github.com/richinex/tablecopilot/storage"
)

// DefaultSchedule is the check interval used when none is configured.
const DefaultSchedule = "@every 30s"

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Notification is one fired reminder.
type Notification struct {
	ScheduleID string
	Title      string
	Message    string
	At         time.Time
}

// Sink delivers notifications somewhere.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger *zap.Logger
}

// Notify logs the reminder.
func (s LogSink) Notify(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		return nil
	}
	logger.Info(n.Title, zap.String("schedule", n.ScheduleID), zap.String("message", n.Message))
	return nil
}

// Notifier checks schedules on a cron schedule.
type Notifier struct {
	store    storage.ScheduleStorage
	sinks    []Sink
	now      func() time.Time
	schedule string
	logger   *zap.Logger
	metrics  *observability.Metrics
	cron     *cron.Cron
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSinks adds delivery sinks.
func WithSinks(sinks ...Sink) Option {
	return func(n *Notifier) { n.sinks = append(n.sinks, sinks...) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithSchedule sets the cron spec, e.g. "@every 30s".
func WithSchedule(spec string) Option {
	return func(n *Notifier) {
		if spec != "" {
			n.schedule = spec
		}
	}
}

// WithMetrics records notification outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// New creates a notifier over the given storage.
func New(store storage.ScheduleStorage, logger *zap.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		store:    store,
		now:      time.Now,
		schedule: DefaultSchedule,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start registers the check job and starts the cron runner.
func (n *Notifier) Start() error {
	if n.cron != nil {
		return errors.New("notifier already started")
	}
	sched, err := cronParser.Parse(n.schedule)
	if err != nil {
		return fmt.Errorf("parse notifier schedule %q: %w", n.schedule, err)
	}

	cl := cronLogger{n.logger.Sugar()}
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	c.Schedule(sched, cron.FuncJob(func() {
		if _, err := n.Check(context.Background()); err != nil {
			n.logger.Warn("Reminder check failed", zap.Error(err))
		}
	}))
	c.Start()
	n.cron = c

	n.logger.Info("Notifier started", zap.String("schedule", n.schedule), zap.Int("sinks", len(n.sinks)))
	return nil
}

// Stop halts the runner and waits for a running check to finish.
func (n *Notifier) Stop() {
	if n.cron == nil {
		return
	}
	<-n.cron.Stop().Done()
	n.cron = nil
	n.logger.Info("Notifier stopped")
}

// Check fires every due reminder once and returns how many fired.
func (n *Notifier) Check(ctx context.Context) (int, error) {
	pending, err := n.store.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending schedules: %w", err)
	}

	now := n.now()
	fired := 0
	for _, sched := range pending {
		when, due, err := Due(sched, now)
		if err != nil {
			n.logger.Warn("Skipping schedule with bad datetime",
				zap.String("schedule", sched.ID), zap.Error(err))
			n.metrics.RecordNotification("skipped")
			continue
		}
		if !due {
			continue
		}

		note := Compose(sched, when)
		n.deliver(ctx, note)

		if err := n.store.MarkNotified(ctx, sched.ID, now.Format(storage.TimestampLayout)); err != nil {
			n.metrics.RecordNotification("error")
			return fired, fmt.Errorf("mark schedule %s notified: %w", sched.ID, err)
		}
		fired++
		n.metrics.RecordNotification("sent")
		n.logger.Info("Fired reminder", zap.String("schedule", sched.ID))
	}
	return fired, nil
}

func (n *Notifier) deliver(ctx context.Context, note Notification) {
	for _, sink := range n.sinks {
		if err := sink.Notify(ctx, note); err != nil {
			n.logger.Warn("Notification sink failed",
				zap.String("schedule", note.ScheduleID), zap.Error(err))
		}
	}
}

// Due reports whether the reminder time of s (datetime minus lead minutes)
// is at or before now. Datetimes are read in now's location.
func Due(s storage.Schedule, now time.Time) (time.Time, bool, error) {
	when, err := time.ParseInLocation(storage.DatetimeLayout, s.Datetime, now.Location())
	if err != nil {
		return time.Time{}, false, err
	}
	remindAt := when.Add(-time.Duration(s.ReminderMinutes) * time.Minute)
	return when, !now.Before(remindAt), nil
}

// Compose builds the reminder text for a schedule.
func Compose(s storage.Schedule, when time.Time) Notification {
	msg := fmt.Sprintf("%s (reminder %d minutes ahead)", s.Datetime, s.ReminderMinutes)
	if s.Description != "" {
		msg += " - " + s.Description
	}
	return Notification{
		ScheduleID: s.ID,
		Title:      "Reminder: " + s.Title,
		Message:    msg,
		At:         when,
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
