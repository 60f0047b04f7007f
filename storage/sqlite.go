// Package storage provides SQLite schedule storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStorage implements ScheduleStorage using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlite(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	return newSqlite(db)
}

// NewSqliteFromDB wraps an existing handle and ensures the schema exists.
func NewSqliteFromDB(db *sql.DB) (*SqliteStorage, error) {
	return newSqlite(db)
}

func newSqlite(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			datetime TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reminder_minutes INTEGER NOT NULL DEFAULT 15,
			repeat TEXT NOT NULL DEFAULT 'once',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT '',
			notified INTEGER NOT NULL DEFAULT 0,
			notified_at TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_schedules_status_datetime
		ON schedules(status, datetime);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const scheduleColumns = `id, title, datetime, description, reminder_minutes, repeat,
	status, created_at, updated_at, notified, notified_at`

// Create stores a new schedule.
func (s *SqliteStorage) Create(ctx context.Context, sched Schedule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.Title, sched.Datetime, sched.Description, sched.ReminderMinutes,
		sched.Repeat, sched.Status, sched.CreatedAt, sched.UpdatedAt, sched.Notified, sched.NotifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// Get returns a schedule by id.
func (s *SqliteStorage) Get(ctx context.Context, id string) (Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to load schedule: %w", err)
	}
	return sched, nil
}

// List returns schedules filtered by status, ordered by datetime.
func (s *SqliteStorage) List(ctx context.Context, status string) ([]Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var args []any
	if status != "" && status != "all" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY datetime, id`
	return s.query(ctx, query, args...)
}

// Pending returns active, not yet notified schedules.
func (s *SqliteStorage) Pending(ctx context.Context) ([]Schedule, error) {
	return s.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE status = ? AND notified = 0 ORDER BY datetime, id`, StatusActive)
}

func (s *SqliteStorage) query(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return out, nil
}

// Update replaces a stored schedule.
func (s *SqliteStorage) Update(ctx context.Context, sched Schedule) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET title = ?, datetime = ?, description = ?, reminder_minutes = ?,
		 repeat = ?, status = ?, updated_at = ?, notified = ?, notified_at = ? WHERE id = ?`,
		sched.Title, sched.Datetime, sched.Description, sched.ReminderMinutes, sched.Repeat,
		sched.Status, sched.UpdatedAt, sched.Notified, sched.NotifiedAt, sched.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return requireOneRow(res)
}

// Delete removes a schedule inside a transaction so the returned record
// is exactly what was removed.
func (s *SqliteStorage) Delete(ctx context.Context, id string) (Schedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to load schedule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id); err != nil {
		return Schedule{}, fmt.Errorf("failed to delete schedule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Schedule{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sched, nil
}

// MarkNotified flags a schedule as notified.
func (s *SqliteStorage) MarkNotified(ctx context.Context, id, at string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET notified = 1, notified_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark schedule notified: %w", err)
	}
	return requireOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var sched Schedule
	err := row.Scan(
		&sched.ID, &sched.Title, &sched.Datetime, &sched.Description, &sched.ReminderMinutes,
		&sched.Repeat, &sched.Status, &sched.CreatedAt, &sched.UpdatedAt, &sched.Notified, &sched.NotifiedAt,
	)
	return sched, err
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// Verify SqliteStorage implements ScheduleStorage
var _ ScheduleStorage = (*SqliteStorage)(nil)
