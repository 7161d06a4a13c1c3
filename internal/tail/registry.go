package tail

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Registry tracks running loops by session ID so the process can report how
// many viewers are attached and stop all of them on shutdown. It is safe for
// concurrent use.
type Registry struct {
	loops sync.Map // map[string]*Loop
	count atomic.Int64

	logger *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Add registers a started loop. It returns false, and stops the loop, when
// the registry has already been closed.
func (r *Registry) Add(l *Loop) bool {
	if r.closed.Load() {
		l.Stop()
		return false
	}
	r.loops.Store(l.Session().ID(), l)
	r.count.Add(1)
	if r.closed.Load() {
		// Close ran between the check above and Store.
		r.Remove(l.Session().ID())
		l.Stop()
		return false
	}
	return true
}

// Remove forgets the loop for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	if _, loaded := r.loops.LoadAndDelete(id); loaded {
		r.count.Add(-1)
	}
}

// Count returns the number of registered loops.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Close stops every registered loop and waits for each to exit. Loops added
// afterwards are stopped immediately.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)

		var wg sync.WaitGroup
		r.loops.Range(func(key, value any) bool {
			r.loops.Delete(key)
			r.count.Add(-1)
			l := value.(*Loop)
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.Stop()
			}()
			return true
		})
		wg.Wait()
		r.logger.Info("tail registry: all sessions stopped")
	})
}
