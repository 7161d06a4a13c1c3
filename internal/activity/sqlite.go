package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// SQLiteStore is a WAL-mode SQLite Store, the default for single-host
// deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. ":memory:" gives a throwaway database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("activity: open %q: %w", path, err)
	}

	// One writer at a time; a single connection serialises Start and Finish
	// calls from concurrent sessions instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("activity: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("activity: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(sqliteDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("activity: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteDDL = `
CREATE TABLE IF NOT EXISTS tail_sessions (
    session_id  TEXT    PRIMARY KEY,
    file        TEXT    NOT NULL,
    transport   TEXT    NOT NULL,
    remote_addr TEXT    NOT NULL DEFAULT '',
    started_at  TEXT    NOT NULL,
    ended_at    TEXT,
    reason      TEXT    NOT NULL DEFAULT '',
    events      INTEGER NOT NULL DEFAULT 0,
    bytes       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tail_sessions_started
    ON tail_sessions (started_at DESC);
`

// Start inserts a running session.
func (s *SQLiteStore) Start(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tail_sessions (session_id, file, transport, remote_addr, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.SessionID, r.File, r.Transport, r.RemoteAddr,
		r.StartedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("activity: start %s: %w", r.SessionID, err)
	}
	return nil
}

// Finish records how a session ended. Finishing an unknown session is not
// an error.
func (s *SQLiteStore) Finish(ctx context.Context, o Outcome) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tail_sessions
		 SET    ended_at = ?, reason = ?, events = ?, bytes = ?
		 WHERE  session_id = ?`,
		o.EndedAt.UTC().Format(tsLayout), o.Reason, o.Events, o.Bytes, o.SessionID,
	)
	if err != nil {
		return fmt.Errorf("activity: finish %s: %w", o.SessionID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, file, transport, remote_addr, started_at, ended_at, reason, events, bytes
		 FROM   tail_sessions
		 ORDER  BY started_at DESC, session_id
		 LIMIT  ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: recent query: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r       Record
			started string
			ended   sql.NullString
		)
		if err := rows.Scan(&r.SessionID, &r.File, &r.Transport, &r.RemoteAddr,
			&started, &ended, &r.Reason, &r.Events, &r.Bytes); err != nil {
			return nil, fmt.Errorf("activity: recent scan: %w", err)
		}
		r.StartedAt = parseTime(started)
		if ended.Valid {
			t := parseTime(ended.String)
			r.EndedAt = &t
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity: recent rows: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// tsLayout is fixed-width so that text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// parseTime reads a stored timestamp, falling back to RFC3339Nano.
func parseTime(v string) time.Time {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}
