// Package activity records the history of tail sessions: who watched which
// file, over which transport, for how long, and why the session ended. The
// history is operational only; it is never used to resume a session.
package activity

import (
	"context"
	"fmt"
	"time"
)

// Record is one tail session. EndedAt is nil while the session is running.
type Record struct {
	SessionID  string     `json:"sessionId"`
	File       string     `json:"file"`
	Transport  string     `json:"transport"`
	RemoteAddr string     `json:"remoteAddr"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Events     int        `json:"events"`
	Bytes      int64      `json:"bytes"`
}

// Outcome closes a Record.
type Outcome struct {
	SessionID string
	EndedAt   time.Time
	Reason    string
	Events    int
	Bytes     int64
}

// Store persists session records. Implementations are safe for concurrent
// use.
type Store interface {
	Start(ctx context.Context, r Record) error
	Finish(ctx context.Context, o Outcome) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

// Open returns the Store for driver: "sqlite", "postgres", or "none".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("activity: unknown driver %q", driver)
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) Start(context.Context, Record) error           { return nil }
func (Nop) Finish(context.Context, Outcome) error         { return nil }
func (Nop) Recent(context.Context, int) ([]Record, error) { return []Record{}, nil }
func (Nop) Close() error                                  { return nil }
