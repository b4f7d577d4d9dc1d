package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; lifecycle workers and HTTP handlers share this handle
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS containers (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			prompt TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_event_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_containers_created ON containers(created_at)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			event_id TEXT PRIMARY KEY,
			container_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_received ON webhook_events(received_at)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateContainer inserts a new container row.
func (s *SQLiteStore) CreateContainer(ctx context.Context, c *Container) error {
	if !c.Status.Valid() {
		return fmt.Errorf("invalid container status %q", c.Status)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO containers (id, status, prompt, created_at, last_event_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Status, c.Prompt, c.CreatedAt, c.LastEventAt)
	return err
}

// GetContainer retrieves a container by id.
func (s *SQLiteStore) GetContainer(ctx context.Context, id string) (*Container, error) {
	var c Container
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, prompt, created_at, last_event_at FROM containers WHERE id = ?`,
		id).Scan(&c.ID, &c.Status, &c.Prompt, &c.CreatedAt, &c.LastEventAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RenameContainer replaces a container's id, preserving the row.
func (s *SQLiteStore) RenameContainer(ctx context.Context, oldID, newID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE containers SET id = ? WHERE id = ?`, newID, oldID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetContainerStatus updates the status of a container.
func (s *SQLiteStore) SetContainerStatus(ctx context.Context, id string, status ContainerStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid container status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE containers SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchContainer stamps last_event_at. Missing rows are not an error: units
// sometimes report under names we never provisioned.
func (s *SQLiteStore) TouchContainer(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE containers SET last_event_at = ? WHERE id = ?`, at, id)
	return err
}

// ListContainers returns all containers, most recent first.
func (s *SQLiteStore) ListContainers(ctx context.Context) ([]Container, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, prompt, created_at, last_event_at FROM containers ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var containers []Container
	for rows.Next() {
		var c Container
		if err := rows.Scan(&c.ID, &c.Status, &c.Prompt, &c.CreatedAt, &c.LastEventAt); err != nil {
			return nil, err
		}
		containers = append(containers, c)
	}
	return containers, rows.Err()
}

// AppendEvent inserts a webhook event row. Events are immutable once written.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *WebhookEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_events (event_id, container_id, event_type, payload, received_at) VALUES (?, ?, ?, ?, ?)`,
		ev.EventID, ev.ContainerID, ev.EventType, ev.Payload, ev.ReceivedAt)
	return err
}

// ListRecentEvents returns up to limit events, most recent first.
func (s *SQLiteStore) ListRecentEvents(ctx context.Context, limit int) ([]WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, container_id, event_type, payload, received_at FROM webhook_events ORDER BY received_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []WebhookEvent
	for rows.Next() {
		var ev WebhookEvent
		if err := rows.Scan(&ev.EventID, &ev.ContainerID, &ev.EventType, &ev.Payload, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetSetting retrieves a setting value by key.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// PutSetting creates or updates a setting.
func (s *SQLiteStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}
