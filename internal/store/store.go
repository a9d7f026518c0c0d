// Package store persists the rendered scan log and enrollment outcomes of
// kiosk sessions. Two backends are available: a local SQLite file and
// PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Workflow names recorded with every entry.
const (
	WorkflowAttendance = "attendance"
	WorkflowEnroll     = "enroll"
)

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 50

// Record is one journaled log entry.
type Record struct {
	ID       int64
	Session  string
	Workflow string
	Seq      int
	At       time.Time
	Severity string
	Message  string
}

// Query filters History. Empty fields match everything.
type Query struct {
	Session  string
	Workflow string
	Limit    int
}

// Journal is an append-only session log.
type Journal interface {
	Append(ctx context.Context, r Record) error
	// History returns matching records, newest first.
	History(ctx context.Context, q Query) ([]Record, error)
	// Reset drops every journaled record.
	Reset(ctx context.Context) error
	Close() error
}

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs go
// to PostgreSQL, anything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (Journal, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("empty journal DSN")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)
	default:
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}

// loggedAt is the timestamp a record is stored with; unset means now.
func (r Record) loggedAt() time.Time {
	if r.At.IsZero() {
		return time.Now()
	}
	return r.At
}
