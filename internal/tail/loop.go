package tail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/tomb.v2"

	"github.com/tripwire/logviewer/internal/fault"
)

// Reason explains why a Loop stopped.
type Reason string

const (
	ReasonDeleted    Reason = "deleted"
	ReasonError      Reason = "error"
	ReasonCancelled  Reason = "cancelled"
	ReasonSinkClosed Reason = "sink_closed"
)

// Result summarises a finished Loop. Events and Bytes count only events the
// sink accepted.
type Result struct {
	Reason Reason
	Err    *fault.Error
	Events int
	Bytes  int64
}

// Waker delivers hints that the watched file may have changed. Hints only
// shorten the wait until the next poll; they never replace it.
type Waker interface {
	Wake() <-chan struct{}
	Close() error
}

// Options configures a Loop. Zero values select the real clock and
// DefaultInterval.
type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	// Waker is optional. The Loop takes ownership and closes it on exit.
	Waker  Waker
	Logger *slog.Logger
}

// Loop drives one Session on a fixed cadence until the file is deleted, a
// read fails, the sink goes away, or the loop is cancelled. Start must be
// called before Stop or Wait.
type Loop struct {
	session  *Session
	sink     Sink
	clock    clock.Clock
	interval time.Duration
	waker    Waker
	logger   *slog.Logger

	t         *tomb.Tomb
	startOnce sync.Once
	ready     chan struct{}
	result    Result

	// pending holds a terminal decision the sink refused as busy. It is
	// re-offered as is instead of polling again.
	pending *Decision
}

// NewLoop returns a Loop for s that emits into sink.
func NewLoop(s *Session, sink Sink, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		session:  s,
		sink:     sink,
		clock:    opts.Clock,
		interval: opts.Interval,
		waker:    opts.Waker,
		logger:   opts.Logger,
		ready:    make(chan struct{}),
	}
}

// Session returns the session the loop drives.
func (l *Loop) Session() *Session { return l.session }

// Start launches the polling goroutine. The loop ends when ctx is cancelled
// or Stop is called. Calls after the first have no effect.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		t, tctx := tomb.WithContext(ctx)
		l.t = t
		t.Go(func() error {
			l.run(tctx)
			return nil
		})
	})
}

// Ready is closed once the initial event has been offered to the sink and
// the poll ticker is running.
func (l *Loop) Ready() <-chan struct{} { return l.ready }

// Stop cancels the loop and blocks until its goroutine has exited. It is
// safe to call more than once.
func (l *Loop) Stop() Result {
	l.t.Kill(nil)
	return l.Wait()
}

// Wait blocks until the loop has exited and returns its Result.
func (l *Loop) Wait() Result {
	_ = l.t.Wait()
	return l.result
}

// Dead is closed when the loop has exited.
func (l *Loop) Dead() <-chan struct{} { return l.t.Dead() }

func (l *Loop) run(ctx context.Context) {
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if l.waker != nil {
		wake = l.waker.Wake()
		defer func() {
			if err := l.waker.Close(); err != nil {
				l.logger.Debug("tail loop: closing waker", slog.Any("error", err))
			}
		}()
	}

	readyOnce := sync.OnceFunc(func() { close(l.ready) })
	defer readyOnce()

	for {
		if ctx.Err() != nil {
			l.finish(ReasonCancelled, nil)
			return
		}

		var d Decision
		if l.pending != nil {
			d = *l.pending
		} else if l.session.State() == Starting {
			d = l.session.Open()
		} else {
			d = l.session.Poll()
		}

		if d.Event != nil {
			if ctx.Err() != nil {
				l.finish(ReasonCancelled, nil)
				return
			}
			if done := l.deliver(ctx, d); done {
				return
			}
		}
		readyOnce()

		select {
		case <-ctx.Done():
			l.finish(ReasonCancelled, nil)
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// deliver emits d's event and commits it on success. It reports whether the
// loop has finished.
func (l *Loop) deliver(ctx context.Context, d Decision) bool {
	ev := *d.Event
	err := l.sink.Emit(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrSinkBusy):
		if ev.Terminal() {
			l.pending = &d
		}
		l.logger.Debug("tail loop: sink busy, retrying next cycle",
			slog.String("session_id", l.session.ID()),
			slog.String("event", ev.Name),
		)
		return false
	default:
		l.session.Terminate()
		if ctx.Err() != nil {
			l.finish(ReasonCancelled, nil)
		} else {
			l.logger.Debug("tail loop: sink rejected event",
				slog.String("session_id", l.session.ID()),
				slog.Any("error", err),
			)
			l.finish(ReasonSinkClosed, nil)
		}
		return true
	}

	l.pending = nil
	l.session.Commit(d)
	l.result.Events++
	l.result.Bytes += int64(len(ev.Data))

	switch ev.Name {
	case EventDeleted:
		l.finish(ReasonDeleted, ev.Err)
		return true
	case EventError:
		l.finish(ReasonError, ev.Err)
		return true
	}
	return false
}

func (l *Loop) finish(reason Reason, err *fault.Error) {
	l.session.Terminate()
	l.result.Reason = reason
	l.result.Err = err
}
