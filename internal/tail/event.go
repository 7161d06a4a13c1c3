// Package tail implements the live-tailing engine: a per-subscriber Session
// that classifies file changes from metadata snapshots, and a Loop that drives
// one Session on a polling cadence and forwards its events to a Sink.
package tail

import (
	"context"
	"errors"
	"time"

	"github.com/tripwire/logviewer/internal/fault"
	"github.com/tripwire/logviewer/internal/inspect"
)

// Event names form the public stream contract; transports send them verbatim.
const (
	EventInit    = "init"
	EventUpdate  = "update"
	EventReload  = "reload"
	EventDeleted = "deleted"
	EventError   = "error"
)

// Event is one emission of a Session. Data holds file bytes for init, update
// and reload. Err is set for deleted and error events.
type Event struct {
	Name string
	Data []byte
	Err  *fault.Error
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Name == EventDeleted || e.Name == EventError
}

// ErrorPayload is the structured body of deleted and error events.
type ErrorPayload struct {
	Message string     `json:"message"`
	Type    fault.Type `json:"type"`
}

// Payload returns the structured body for terminal events and nil otherwise.
func (e Event) Payload() *ErrorPayload {
	if e.Err == nil {
		return nil
	}
	return &ErrorPayload{Message: e.Err.Message, Type: e.Err.Type}
}

// ErrorEvent builds an error event for err, classifying it first.
func ErrorEvent(err error) Event {
	return Event{Name: EventError, Err: fault.Classify(err)}
}

// ErrSinkBusy is returned by a Sink that cannot accept an event right now but
// remains usable. The Loop leaves session state untouched and re-derives the
// event on the next cycle.
var ErrSinkBusy = errors.New("tail: sink busy")

// Sink receives the events of one session. Any error other than ErrSinkBusy
// ends the session.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f(ctx, ev).
func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Inspector is the filesystem view a Session depends on. inspect.Local is
// the production implementation.
type Inspector interface {
	Stat(path string) inspect.Snapshot
	ReadAll(path string) ([]byte, error)
	ReadRange(path string, from, length int64) ([]byte, error)
}

// DefaultInterval is the reference poll cadence.
const DefaultInterval = time.Second
