package tail_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tripwire/logviewer/internal/fault"
	"github.com/tripwire/logviewer/internal/inspect"
	"github.com/tripwire/logviewer/internal/tail"
)

// fakeFile is an in-memory Inspector for one path. Each mutation advances the
// modification time by one second unless the test sets it explicitly.
type fakeFile struct {
	mu       sync.Mutex
	exists   bool
	regular  bool
	readable bool
	data     []byte
	mod      time.Time
	readErr  error
	// extra is appended to ReadAll results to simulate writes that land
	// between Stat and the read.
	extra []byte
}

func newFakeFile(content string) *fakeFile {
	return &fakeFile{
		exists:   true,
		regular:  true,
		readable: true,
		data:     []byte(content),
		mod:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeFile) Stat(string) inspect.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return inspect.Snapshot{}
	}
	return inspect.Snapshot{
		Exists:    true,
		IsRegular: f.regular,
		Readable:  f.readable,
		Size:      int64(len(f.data)),
		ModTime:   f.mod,
	}
}

func (f *fakeFile) ReadAll(string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := append([]byte(nil), f.data...)
	return append(out, f.extra...), nil
}

func (f *fakeFile) ReadRange(_ string, from, length int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if from+length > int64(len(f.data)) {
		return nil, fault.New(fault.IOError, "short read")
	}
	return append([]byte(nil), f.data[from:from+length]...), nil
}

func (f *fakeFile) set(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = true
	f.data = []byte(content)
	f.mod = f.mod.Add(time.Second)
}

func (f *fakeFile) appendData(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, content...)
	f.mod = f.mod.Add(time.Second)
}

func (f *fakeFile) touch() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mod = f.mod.Add(time.Second)
}

func (f *fakeFile) remove() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = false
}

func (f *fakeFile) update(fn func(f *fakeFile)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// step polls once and commits whatever was decided, as a Loop with an
// always-accepting sink would.
func step(s *tail.Session) *tail.Event {
	var d tail.Decision
	if s.State() == tail.Starting {
		d = s.Open()
	} else {
		d = s.Poll()
	}
	s.Commit(d)
	return d.Event
}

func repeat(b byte, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return string(out)
}

func TestSession_Scenario(t *testing.T) {
	f := newFakeFile(repeat('a', 100))
	s := tail.NewSession("s1", "/logs/app.log", f)

	ev := step(s)
	if ev == nil || ev.Name != tail.EventInit || len(ev.Data) != 100 {
		t.Fatalf("first event = %+v, want init with 100 bytes", ev)
	}
	if s.State() != tail.Streaming || s.Offset() != 100 {
		t.Fatalf("state = %v offset = %d, want streaming at 100", s.State(), s.Offset())
	}

	f.appendData(repeat('b', 40))
	ev = step(s)
	if ev == nil || ev.Name != tail.EventUpdate || string(ev.Data) != repeat('b', 40) {
		t.Fatalf("second event = %+v, want update with the 40 appended bytes", ev)
	}
	if s.Offset() != 140 {
		t.Errorf("offset = %d, want 140", s.Offset())
	}

	f.set("0123456789")
	ev = step(s)
	if ev == nil || ev.Name != tail.EventReload || string(ev.Data) != "0123456789" {
		t.Fatalf("third event = %+v, want reload with new content", ev)
	}
	if s.Offset() != 10 {
		t.Errorf("offset = %d, want 10 after reload", s.Offset())
	}

	f.remove()
	ev = step(s)
	if ev == nil || ev.Name != tail.EventDeleted {
		t.Fatalf("fourth event = %+v, want deleted", ev)
	}
	if ev.Err == nil || ev.Err.Type != fault.FileDeleted {
		t.Errorf("deleted payload = %+v, want FILE_DELETED", ev.Err)
	}
	if s.State() != tail.Terminated {
		t.Errorf("state = %v, want terminated", s.State())
	}
}

func TestSession_AppendsConcatenateExactly(t *testing.T) {
	f := newFakeFile("start\n")
	s := tail.NewSession("s1", "app.log", f)
	step(s)

	var got []byte
	chunks := []string{"one\n", "two\n", "", "three\nfour\n", "x"}
	for _, c := range chunks {
		if c == "" {
			f.touch()
			// A touch without growth reloads; that resets the baseline.
			ev := step(s)
			if ev == nil || ev.Name != tail.EventReload {
				t.Fatalf("touch produced %+v, want reload", ev)
			}
			got = nil
			continue
		}
		f.appendData(c)
		ev := step(s)
		if ev == nil || ev.Name != tail.EventUpdate {
			t.Fatalf("append %q produced %+v, want update", c, ev)
		}
		got = append(got, ev.Data...)
	}
	if string(got) != "three\nfour\nx" {
		t.Errorf("updates since last reload = %q, want %q", got, "three\nfour\nx")
	}
}

func TestSession_NoChangeProducesNoEvent(t *testing.T) {
	f := newFakeFile("hello")
	s := tail.NewSession("s1", "app.log", f)
	step(s)

	for i := 0; i < 2; i++ {
		if ev := step(s); ev != nil {
			t.Fatalf("poll %d produced %+v, want nothing", i, ev)
		}
	}
	if s.Offset() != 5 {
		t.Errorf("offset = %d, want 5", s.Offset())
	}
}

func TestSession_OlderModTimeIgnored(t *testing.T) {
	f := newFakeFile("hello")
	s := tail.NewSession("s1", "app.log", f)
	step(s)

	f.update(func(f *fakeFile) {
		f.data = append(f.data, " world"...)
		f.mod = f.mod.Add(-time.Minute)
	})
	if ev := step(s); ev != nil {
		t.Fatalf("poll produced %+v, want nothing while mtime did not advance", ev)
	}
}

func TestSession_SameSizeNewerModTimeReloads(t *testing.T) {
	f := newFakeFile("aaaa")
	s := tail.NewSession("s1", "app.log", f)
	step(s)

	f.set("bbbb")
	ev := step(s)
	if ev == nil || ev.Name != tail.EventReload || string(ev.Data) != "bbbb" {
		t.Fatalf("event = %+v, want reload with rewritten content", ev)
	}
}

func TestSession_UncommittedDecisionIsRederived(t *testing.T) {
	f := newFakeFile("abc")
	s := tail.NewSession("s1", "app.log", f)
	step(s)

	f.appendData("def")
	d := s.Poll()
	if d.Event == nil || string(d.Event.Data) != "def" {
		t.Fatalf("first poll = %+v, want update def", d.Event)
	}
	// Not committed: the sink refused it. More data arrives meanwhile.
	f.appendData("ghi")

	ev := step(s)
	if ev == nil || ev.Name != tail.EventUpdate || string(ev.Data) != "defghi" {
		t.Fatalf("retry = %+v, want widened update defghi", ev)
	}
	if s.Offset() != 9 {
		t.Errorf("offset = %d, want 9", s.Offset())
	}
}

func TestSession_ReadWholeCutsToSnapshotSize(t *testing.T) {
	f := newFakeFile("first")
	f.extra = []byte("+late")
	s := tail.NewSession("s1", "app.log", f)

	ev := step(s)
	if ev == nil || string(ev.Data) != "first" {
		t.Fatalf("init = %+v, want content cut to snapshot size", ev)
	}
	if s.Offset() != 5 {
		t.Errorf("offset = %d, want 5", s.Offset())
	}
}

func TestSession_OpenFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fakeFile)
		want   fault.Type
	}{
		{"missing", func(f *fakeFile) { f.exists = false }, fault.FileNotFound},
		{"not regular", func(f *fakeFile) { f.regular = false; f.readable = false }, fault.FileNotFound},
		{"unreadable", func(f *fakeFile) { f.readable = false }, fault.NoPermission},
		{"read fails", func(f *fakeFile) { f.readErr = errors.New("boom") }, fault.IOError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeFile("data")
			f.update(tc.mutate)
			s := tail.NewSession("s1", "app.log", f)

			ev := step(s)
			if ev == nil || ev.Name != tail.EventError {
				t.Fatalf("event = %+v, want error", ev)
			}
			if ev.Err.Type != tc.want {
				t.Errorf("type = %q, want %q", ev.Err.Type, tc.want)
			}
			if s.State() != tail.Terminated {
				t.Errorf("state = %v, want terminated without streaming", s.State())
			}
		})
	}
}

func TestSession_MidStreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fakeFile)
		want   fault.Type
	}{
		{"became directory", func(f *fakeFile) { f.regular = false }, fault.NotAFile},
		{"permission lost", func(f *fakeFile) { f.readable = false }, fault.NoPermission},
		{"read error", func(f *fakeFile) {
			f.data = append(f.data, "more"...)
			f.mod = f.mod.Add(time.Second)
			f.readErr = fault.New(fault.AccessDenied, "denied")
		}, fault.AccessDenied},
		{"reload read error", func(f *fakeFile) {
			f.data = f.data[:1]
			f.mod = f.mod.Add(time.Second)
			f.readErr = errors.New("disk gone")
		}, fault.IOError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeFile("data")
			s := tail.NewSession("s1", "app.log", f)
			step(s)

			f.update(tc.mutate)
			ev := step(s)
			if ev == nil || ev.Name != tail.EventError {
				t.Fatalf("event = %+v, want error", ev)
			}
			if ev.Err.Type != tc.want {
				t.Errorf("type = %q, want %q", ev.Err.Type, tc.want)
			}
			if s.State() != tail.Terminated {
				t.Errorf("state = %v, want terminated", s.State())
			}
		})
	}
}

func TestSession_IndependentSessions(t *testing.T) {
	f := newFakeFile("abc")
	first := tail.NewSession("a", "app.log", f)
	step(first)

	f.appendData("def")
	second := tail.NewSession("b", "app.log", f)
	if ev := step(second); ev == nil || string(ev.Data) != "abcdef" {
		t.Fatalf("second init = %+v, want full content", ev)
	}

	if ev := step(first); ev == nil || ev.Name != tail.EventUpdate || string(ev.Data) != "def" {
		t.Fatalf("first session = %+v, want update def", ev)
	}

	f.set("z")
	if ev := step(second); ev == nil || ev.Name != tail.EventReload {
		t.Fatalf("second session = %+v, want reload", ev)
	}
	if first.Offset() != 6 {
		t.Errorf("first offset = %d, want 6 (unaffected by second session)", first.Offset())
	}
}

func TestEvent_Payload(t *testing.T) {
	ev := tail.ErrorEvent(fault.New(fault.InvalidPath, "invalid file path"))
	p := ev.Payload()
	if p == nil || p.Type != fault.InvalidPath || p.Message != "invalid file path" {
		t.Errorf("payload = %+v", p)
	}
	if !ev.Terminal() {
		t.Error("error events are terminal")
	}
	if (tail.Event{Name: tail.EventUpdate}).Payload() != nil {
		t.Error("update events carry no error payload")
	}
}
