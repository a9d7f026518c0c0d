package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed-width so logged_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is a Journal backed by a local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the journal file at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; the attendance loop appends from several goroutines.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS journal_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			workflow TEXT NOT NULL,
			seq INTEGER NOT NULL,
			logged_at TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS journal_entries_session_idx ON journal_entries (session_id);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append saves one entry.
func (s *SQLite) Append(ctx context.Context, r Record) error {
	at := r.loggedAt()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (session_id, workflow, seq, logged_at, severity, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Session, r.Workflow, r.Seq, at.UTC().Format(sqliteTimeLayout), r.Severity, r.Message)
	return err
}

// History lists entries newest first.
func (s *SQLite) History(ctx context.Context, q Query) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, workflow, seq, logged_at, severity, message
		FROM journal_entries
		WHERE (? = '' OR session_id = ?) AND (? = '' OR workflow = ?)
		ORDER BY logged_at DESC, id DESC
		LIMIT ?
	`, q.Session, q.Session, q.Workflow, q.Workflow, q.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var at string
		if err := rows.Scan(&r.ID, &r.Session, &r.Workflow, &r.Seq, &at, &r.Severity, &r.Message); err != nil {
			return nil, err
		}
		if r.At, err = time.Parse(sqliteTimeLayout, at); err != nil {
			return nil, fmt.Errorf("parse logged_at %q: %w", at, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops the journal table and recreates it empty.
func (s *SQLite) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS journal_entries`); err != nil {
		return err
	}
	return s.initSchema(ctx)
}
