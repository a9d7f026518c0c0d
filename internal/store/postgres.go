package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Postgres is a Journal backed by a single PostgreSQL connection.
type Postgres struct {
	conn *pgx.Conn
}

// NewPostgres establishes a connection to the database and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initPostgresSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Postgres{conn: conn}, nil
}

func initPostgresSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS journal_entries (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			workflow TEXT NOT NULL,
			seq INT NOT NULL,
			logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			severity TEXT NOT NULL,
			message TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS journal_entries_session_idx ON journal_entries (session_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection. It uses a fresh context because
// the command context may already be cancelled by Ctrl+C.
func (s *Postgres) Close() error {
	return s.conn.Close(context.Background())
}

// Append saves one entry.
func (s *Postgres) Append(ctx context.Context, r Record) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO journal_entries (session_id, workflow, seq, logged_at, severity, message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.Session, r.Workflow, r.Seq, r.loggedAt().UTC(), r.Severity, r.Message)
	return err
}

// History lists entries newest first.
func (s *Postgres) History(ctx context.Context, q Query) ([]Record, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, session_id, workflow, seq, logged_at, severity, message
		FROM journal_entries
		WHERE ($1::text = '' OR session_id = $1) AND ($2::text = '' OR workflow = $2)
		ORDER BY logged_at DESC, id DESC
		LIMIT $3
	`, q.Session, q.Workflow, q.limit())
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.Session, &r.Workflow, &r.Seq, &r.At, &r.Severity, &r.Message)
		return r, err
	})
}

// Reset drops the journal table and recreates it empty.
func (s *Postgres) Reset(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS journal_entries CASCADE;`); err != nil {
		return err
	}
	return initPostgresSchema(ctx, s.conn)
}
