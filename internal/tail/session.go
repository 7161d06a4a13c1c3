package tail

import (
	"time"

	"github.com/tripwire/logviewer/internal/fault"
)

// State is the lifecycle phase of a Session.
type State int

const (
	Starting State = iota
	Streaming
	Terminated
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one Open or Poll. A nil Event means nothing
// changed. Offset and ModTime are the state the Session adopts when the
// decision is committed.
type Decision struct {
	Event   *Event
	Offset  int64
	ModTime time.Time
}

// Session owns one subscriber's view of one file. It decides which event a
// snapshot warrants but never emits anything itself; the caller commits a
// Decision only after its event was accepted, so a rejected event is
// re-derived on the next cycle. A Session is not safe for concurrent use.
type Session struct {
	id   string
	path string
	insp Inspector

	state   State
	offset  int64
	modTime time.Time
}

// NewSession returns a Session in the Starting state for the resolved path.
func NewSession(id, path string, insp Inspector) *Session {
	return &Session{id: id, path: path, insp: insp}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Path returns the resolved file path.
func (s *Session) Path() string { return s.path }

// State returns the current lifecycle phase.
func (s *Session) State() State { return s.state }

// Offset returns the number of bytes the subscriber has been sent.
func (s *Session) Offset() int64 { return s.offset }

// ModTime returns the modification time recorded with the last commit.
func (s *Session) ModTime() time.Time { return s.modTime }

// Open takes the first snapshot and returns either an init event carrying
// the whole file or a terminal error event.
func (s *Session) Open() Decision {
	snap := s.insp.Stat(s.path)
	switch {
	case !snap.Exists || !snap.IsRegular:
		return terminal(EventError, fault.New(fault.FileNotFound, "file not found"))
	case !snap.Readable:
		return terminal(EventError, fault.New(fault.NoPermission, "no permission to read file"))
	}

	data, err := s.readWhole(snap.Size)
	if err != nil {
		return Decision{Event: &Event{Name: EventError, Err: fault.Classify(err)}}
	}
	return Decision{
		Event:   &Event{Name: EventInit, Data: data},
		Offset:  int64(len(data)),
		ModTime: snap.ModTime,
	}
}

// Poll takes a fresh snapshot and classifies the change since the last
// commit. It returns an empty Decision when the modification time has not
// advanced.
func (s *Session) Poll() Decision {
	snap := s.insp.Stat(s.path)
	switch {
	case !snap.Exists:
		return terminal(EventDeleted, fault.New(fault.FileDeleted, "file was deleted"))
	case !snap.IsRegular:
		return terminal(EventError, fault.New(fault.NotAFile, "path is no longer a regular file"))
	case !snap.Readable:
		return terminal(EventError, fault.New(fault.NoPermission, "no permission to read file"))
	case !snap.ModTime.After(s.modTime):
		return Decision{}
	}

	if snap.Size > s.offset {
		data, err := s.insp.ReadRange(s.path, s.offset, snap.Size-s.offset)
		if err != nil {
			return Decision{Event: &Event{Name: EventError, Err: fault.Classify(err)}}
		}
		return Decision{
			Event:   &Event{Name: EventUpdate, Data: data},
			Offset:  snap.Size,
			ModTime: snap.ModTime,
		}
	}

	// Shrunk, replaced, or rewritten in place with the same size.
	data, err := s.readWhole(snap.Size)
	if err != nil {
		return Decision{Event: &Event{Name: EventError, Err: fault.Classify(err)}}
	}
	return Decision{
		Event:   &Event{Name: EventReload, Data: data},
		Offset:  int64(len(data)),
		ModTime: snap.ModTime,
	}
}

// Commit adopts d after its event was delivered. Terminal events move the
// session to Terminated; Commit on a terminated session is a no-op.
func (s *Session) Commit(d Decision) {
	if s.state == Terminated || d.Event == nil {
		return
	}
	if d.Event.Terminal() {
		s.state = Terminated
		return
	}
	s.offset = d.Offset
	s.modTime = d.ModTime
	s.state = Streaming
}

// Terminate ends the session without an event.
func (s *Session) Terminate() { s.state = Terminated }

// readWhole reads the file and cuts it to size so bytes appended after the
// snapshot are picked up by the next update rather than sent twice.
func (s *Session) readWhole(size int64) ([]byte, error) {
	data, err := s.insp.ReadAll(s.path)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > size {
		data = data[:size]
	}
	return data, nil
}

func terminal(name string, err *fault.Error) Decision {
	return Decision{Event: &Event{Name: name, Err: err}}
}
