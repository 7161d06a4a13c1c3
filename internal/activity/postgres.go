package activity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by a pgx connection pool, for deployments
// that already keep operational data in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connStr, pings the server, and creates the
// schema if needed.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("activity: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("activity: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("activity: apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresDDL = `
CREATE TABLE IF NOT EXISTS tail_sessions (
    session_id  UUID        PRIMARY KEY,
    file        TEXT        NOT NULL,
    transport   TEXT        NOT NULL,
    remote_addr TEXT        NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ,
    reason      TEXT        NOT NULL DEFAULT '',
    events      INTEGER     NOT NULL DEFAULT 0,
    bytes       BIGINT      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tail_sessions_started
    ON tail_sessions (started_at DESC);
`

// Start inserts a running session.
func (s *PostgresStore) Start(ctx context.Context, r Record) error {
	const q = `
		INSERT INTO tail_sessions (session_id, file, transport, remote_addr, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, r.SessionID, r.File, r.Transport, r.RemoteAddr, r.StartedAt); err != nil {
		return fmt.Errorf("activity: start %s: %w", r.SessionID, err)
	}
	return nil
}

// Finish records how a session ended.
func (s *PostgresStore) Finish(ctx context.Context, o Outcome) error {
	const q = `
		UPDATE tail_sessions
		SET    ended_at = $2, reason = $3, events = $4, bytes = $5
		WHERE  session_id = $1`
	if _, err := s.pool.Exec(ctx, q, o.SessionID, o.EndedAt, o.Reason, o.Events, o.Bytes); err != nil {
		return fmt.Errorf("activity: finish %s: %w", o.SessionID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	const q = `
		SELECT session_id::text, file, transport, remote_addr, started_at, ended_at, reason, events, bytes
		FROM   tail_sessions
		ORDER  BY started_at DESC, session_id
		LIMIT  $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: recent query: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.SessionID, &r.File, &r.Transport, &r.RemoteAddr,
			&r.StartedAt, &r.EndedAt, &r.Reason, &r.Events, &r.Bytes)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("activity: recent scan: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
