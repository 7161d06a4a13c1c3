// Package viewer is the log viewer service. It validates viewer requests
// against the configured log directory and runs one tail session per
// subscriber, recording each session's history and metrics.
package viewer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/tripwire/logviewer/internal/activity"
	"github.com/tripwire/logviewer/internal/audit"
	"github.com/tripwire/logviewer/internal/config"
	"github.com/tripwire/logviewer/internal/fault"
	"github.com/tripwire/logviewer/internal/inspect"
	"github.com/tripwire/logviewer/internal/listing"
	"github.com/tripwire/logviewer/internal/metrics"
	"github.com/tripwire/logviewer/internal/pathguard"
	"github.com/tripwire/logviewer/internal/tail"
)

// Auditor records administrative actions. *audit.Trail implements it.
type Auditor interface {
	Record(a audit.Action) (audit.Entry, error)
}

// Service is the log viewer. It is safe for concurrent use.
type Service struct {
	cfg      *config.Config
	dir      *config.Directory
	logger   *slog.Logger
	insp     tail.Inspector
	registry *tail.Registry
	store    activity.Store
	auditor  Auditor
	metrics  *metrics.Metrics
	clock    clock.Clock
	newID    func() string
}

// Option is a functional option for Service construction.
type Option func(*Service)

// WithStore records session history in st.
func WithStore(st activity.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithAuditor records directory changes in a.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithMetrics reports session and event counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces the poll clock; tests pass a mock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithInspector replaces the filesystem inspector.
func WithInspector(i tail.Inspector) Option {
	return func(s *Service) { s.insp = i }
}

// New creates a Service. Components not supplied through options default to
// no-op implementations, which is useful in tests.
func New(cfg *config.Config, dir *config.Directory, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		dir:    dir,
		logger: logger,
		insp:   inspect.Local{},
		store:  activity.Nop{},
		clock:  clock.New(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = tail.NewRegistry(logger)
	return s
}

// ConfigView is the public view of the service configuration.
type ConfigView struct {
	BasePath     string `json:"basePath"`
	IsConfigured bool   `json:"isConfigured"`
	LogDirectory string `json:"logDirectory"`
}

// Config reports the base path and the current log directory.
func (s *Service) Config() ConfigView {
	return ConfigView{
		BasePath:     s.cfg.BasePath,
		IsConfigured: s.dir.IsConfigured(),
		LogDirectory: s.dir.Root(),
	}
}

// SetDirectory validates path and makes it the log directory. actor
// identifies the caller in the audit trail.
func (s *Service) SetDirectory(path, actor string) (string, error) {
	path = strings.TrimSpace(path)
	previous := s.dir.Root()

	err := checkDirectory(path)
	if err == nil {
		s.dir.SetRoot(path)
	}
	s.audit(path, previous, actor, err)

	if err != nil {
		s.logger.Warn("viewer: directory change rejected",
			slog.String("path", path),
			slog.String("error_type", string(fault.TypeOf(err))),
		)
		return "", err
	}
	s.logger.Info("viewer: log directory changed",
		slog.String("path", path),
		slog.String("previous", previous),
	)
	return path, nil
}

func checkDirectory(path string) error {
	if path == "" {
		return fault.New(fault.EmptyPath, "path is required")
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fault.New(fault.NotFound, "path does not exist: "+path)
	case errors.Is(err, fs.ErrPermission):
		return fault.Wrap(fault.SecurityError, "directory access blocked: "+path, err)
	case err != nil:
		return fault.Wrap(fault.IOError, "cannot inspect path: "+path, err)
	case !info.IsDir():
		return fault.New(fault.NotDirectory, "path is not a directory: "+path)
	case !inspect.Readable(path):
		return fault.New(fault.NoPermission, "no read permission on directory: "+path)
	}
	if _, err := os.ReadDir(path); err != nil {
		return fault.Wrap(fault.AccessDenied, "cannot list directory: "+path, err)
	}
	return nil
}

func (s *Service) audit(path, previous, actor string, err error) {
	if s.auditor == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(fault.TypeOf(err))
	}
	if _, aerr := s.auditor.Record(audit.Action{
		Kind:     audit.ActionSetDirectory,
		Actor:    actor,
		Target:   path,
		Previous: previous,
		Outcome:  outcome,
	}); aerr != nil {
		s.logger.Error("viewer: audit record failed", slog.Any("error", aerr))
	}
}

// FileList is the content of the log directory.
type FileList struct {
	Files     []listing.Entry `json:"files"`
	Directory string          `json:"directory"`
}

// Files lists the viewable files in the log directory.
func (s *Service) Files() (FileList, error) {
	root := s.dir.Root()
	if !s.dir.IsConfigured() {
		return FileList{Files: []listing.Entry{}}, pathguard.ErrNotConfigured
	}
	files, err := listing.List(root, s.cfg.Extensions)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return FileList{Files: []listing.Entry{}}, fault.Wrap(fault.SecurityError, "directory access denied", err)
		}
		return FileList{Files: []listing.Entry{}}, fault.Wrap(fault.Unknown, "cannot list log files", err)
	}
	return FileList{Files: files, Directory: root}, nil
}

// Content is a one-shot read of a whole file.
type Content struct {
	Content      string `json:"content"`
	FileName     string `json:"fileName"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
}

// Content reads name from the log directory.
func (s *Service) Content(name string) (Content, error) {
	path, err := pathguard.Resolve(s.dir.Root(), name)
	if err != nil {
		return Content{}, err
	}
	snap := s.insp.Stat(path)
	switch {
	case !snap.Exists:
		return Content{}, fault.New(fault.FileNotFound, "file not found: "+name)
	case !snap.IsRegular:
		return Content{}, fault.New(fault.NotAFile, "path is not a file: "+name)
	case !snap.Readable:
		return Content{}, fault.New(fault.NoPermission, "no permission to read file: "+name)
	}
	data, err := s.insp.ReadAll(path)
	if err != nil {
		return Content{}, fault.Classify(err)
	}
	return Content{
		Content:      string(data),
		FileName:     name,
		Size:         int64(len(data)),
		LastModified: snap.ModTime.UnixMilli(),
	}, nil
}

// Subscription identifies one stream request.
type Subscription struct {
	File       string
	Transport  string
	RemoteAddr string
}

// Stream runs a tail session for sub until it terminates, emitting into
// sink. Requests that fail validation return an error before any session
// starts; everything after that is reported through sink and the Result.
func (s *Service) Stream(ctx context.Context, sub Subscription, sink tail.Sink) (tail.Result, error) {
	path, err := pathguard.Resolve(s.dir.Root(), sub.File)
	if err != nil {
		return tail.Result{}, err
	}

	id := s.newID()
	logger := s.logger.With(
		slog.String("session_id", id),
		slog.String("file", sub.File),
		slog.String("transport", sub.Transport),
	)

	opts := tail.Options{
		Interval: s.cfg.PollInterval,
		Clock:    s.clock,
		Logger:   logger,
	}
	if s.cfg.NotifyEnabled() {
		if w, err := tail.NewNotifyWaker(path, logger); err != nil {
			logger.Debug("viewer: notifications unavailable, polling only", slog.Any("error", err))
		} else {
			opts.Waker = w
		}
	}

	loop := tail.NewLoop(tail.NewSession(id, path, s.insp), s.meter(sink), opts)
	started := s.clock.Now()
	if err := s.store.Start(ctx, activity.Record{
		SessionID:  id,
		File:       sub.File,
		Transport:  sub.Transport,
		RemoteAddr: sub.RemoteAddr,
		StartedAt:  started.UTC(),
	}); err != nil {
		logger.Warn("viewer: activity start failed", slog.Any("error", err))
	}
	if s.metrics != nil {
		s.metrics.SessionStarted()
	}
	logger.Info("viewer: session started")

	loop.Start(ctx)
	if s.registry.Add(loop) {
		defer s.registry.Remove(id)
	}
	res := loop.Wait()

	s.finish(ctx, id, res, logger)
	return res, nil
}

func (s *Service) finish(ctx context.Context, id string, res tail.Result, logger *slog.Logger) {
	if s.metrics != nil {
		s.metrics.SessionEnded(string(res.Reason))
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.Finish(fctx, activity.Outcome{
		SessionID: id,
		EndedAt:   s.clock.Now().UTC(),
		Reason:    string(res.Reason),
		Events:    res.Events,
		Bytes:     res.Bytes,
	}); err != nil {
		logger.Warn("viewer: activity finish failed", slog.Any("error", err))
	}

	attrs := []any{
		slog.String("reason", string(res.Reason)),
		slog.Int("events", res.Events),
		slog.Int64("bytes", res.Bytes),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("error_type", string(res.Err.Type)))
	}
	logger.Info("viewer: session ended", attrs...)
}

// Sessions returns recent session history, newest first.
func (s *Service) Sessions(ctx context.Context, limit int) ([]activity.Record, error) {
	return s.store.Recent(ctx, limit)
}

// ActiveSessions returns the number of running sessions.
func (s *Service) ActiveSessions() int {
	return s.registry.Count()
}

// Close stops every running session and waits for them to exit.
func (s *Service) Close() {
	s.registry.Close()
}

// meter wraps sink so that every accepted event is counted.
func (s *Service) meter(sink tail.Sink) tail.Sink {
	if s.metrics == nil {
		return sink
	}
	return tail.SinkFunc(func(ctx context.Context, ev tail.Event) error {
		if err := sink.Emit(ctx, ev); err != nil {
			return err
		}
		s.metrics.EventDelivered(ev.Name, len(ev.Data))
		return nil
	})
}
