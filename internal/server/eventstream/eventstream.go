// Package eventstream serves tail sessions as Server-Sent Events.
//
// Each tail event becomes one SSE message whose event field is the tail
// event name. File bytes travel as the message data; deleted and error
// events carry a JSON object {"message":..., "type":...}.
//
// SSE has no way to carry a CR inside data, so CRLF line endings reach the
// client as LF. Concatenated update data on this transport therefore matches
// the file bytes only up to line endings; the WebSocket transport keeps them.
package eventstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/sse"

	"github.com/tripwire/logviewer/internal/tail"
	"github.com/tripwire/logviewer/internal/viewer"
)

// Streamer runs one tail session. *viewer.Service implements it.
type Streamer interface {
	Stream(ctx context.Context, sub viewer.Subscription, sink tail.Sink) (tail.Result, error)
}

// Handler is an http.Handler that streams the file named by the "file" query
// parameter until the session ends or the client goes away.
type Handler struct {
	svc    Streamer
	logger *slog.Logger
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc Streamer, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sink, err := NewSink(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", sse.ContentType)
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	sink.flusher.Flush()

	sub := viewer.Subscription{
		File:       r.URL.Query().Get("file"),
		Transport:  "sse",
		RemoteAddr: r.RemoteAddr,
	}

	if _, err := h.svc.Stream(r.Context(), sub, sink); err != nil {
		// Rejected before a session started; the client still gets a
		// terminal error event.
		h.logger.Warn("eventstream: stream rejected",
			slog.String("file", sub.File),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err),
		)
		_ = sink.Emit(r.Context(), tail.ErrorEvent(err))
	}
}

// errClosed is returned once a write to the client has failed.
var errClosed = errors.New("eventstream: client gone")

// Sink writes tail events to an SSE response. It is not safe for concurrent
// use; a tail.Loop calls Emit from a single goroutine.
type Sink struct {
	w       *errWriter
	flusher http.Flusher
}

// NewSink returns a Sink writing to w, which must implement http.Flusher.
func NewSink(w http.ResponseWriter) (*Sink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("eventstream: response writer cannot flush")
	}
	return &Sink{w: &errWriter{w: w}, flusher: f}, nil
}

// Emit encodes ev as one SSE message and flushes it.
func (s *Sink) Emit(ctx context.Context, ev tail.Event) error {
	if s.w.err != nil {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := sse.Event{Event: ev.Name}
	if p := ev.Payload(); p != nil {
		msg.Data = p
	} else {
		// A bare CR is a line break on the wire; CRLF files arrive as LF.
		msg.Data = strings.ReplaceAll(string(ev.Data), "\r\n", "\n")
	}
	if err := sse.Encode(s.w, msg); err != nil {
		return err
	}
	if s.w.err != nil {
		return s.w.err
	}
	s.flusher.Flush()
	return nil
}

// errWriter remembers the first write error so a dropped connection is
// noticed even when the encoder does not report it.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
