package tail

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// NotifyWaker turns fsnotify events for one file into Loop wake-ups. It
// watches the parent directory so that rotation (remove then create under
// the same name) keeps producing hints.
type NotifyWaker struct {
	path    string
	watcher *fsnotify.Watcher
	wake    chan struct{}
	logger  *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewNotifyWaker starts watching the directory containing path.
func NewNotifyWaker(path string, logger *slog.Logger) (*NotifyWaker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tail: create fsnotify watcher: %w", err)
	}
	clean := filepath.Clean(path)
	if err := w.Add(filepath.Dir(clean)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("tail: watch %q: %w", filepath.Dir(clean), err)
	}

	n := &NotifyWaker{
		path:    clean,
		watcher: w,
		wake:    make(chan struct{}, 1),
		logger:  logger,
	}
	n.wg.Add(1)
	go n.run()
	return n, nil
}

// Wake returns the hint channel. At most one hint is buffered.
func (n *NotifyWaker) Wake() <-chan struct{} { return n.wake }

// Close releases the watch and waits for the event goroutine to exit.
func (n *NotifyWaker) Close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.watcher.Close()
		n.wg.Wait()
	})
	return n.closeErr
}

func (n *NotifyWaker) run() {
	defer n.wg.Done()
	for {
		select {
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != n.path {
				continue
			}
			select {
			case n.wake <- struct{}{}:
			default:
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Debug("tail notify: watcher error",
				slog.String("path", n.path),
				slog.Any("error", err),
			)
		}
	}
}
