package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tripwire/logviewer/internal/tail"
	"github.com/tripwire/logviewer/internal/viewer"
)

// maxFrameSize caps client-to-server frames. Clients only send control
// frames, so anything larger drops the connection.
const maxFrameSize = 64 * 1024

// Streamer runs one tail session. *viewer.Service implements it.
type Streamer interface {
	Stream(ctx context.Context, sub viewer.Subscription, sink tail.Sink) (tail.Result, error)
}

// Handler is an http.Handler that upgrades the request to a WebSocket and
// tails the file named by the "file" query parameter over it.
type Handler struct {
	svc      Streamer
	logger   *slog.Logger
	upgrader websocket.Upgrader
	bufSize  int

	// writeTimeout bounds each frame write; pingPeriod must stay below
	// pongWait so an idle but healthy peer is never dropped.
	writeTimeout time.Duration
	pongWait     time.Duration
	pingPeriod   time.Duration
}

// NewHandler creates a Handler backed by svc.
//
// bufSize ≤ 0 defaults to 16 queued frames; writeTimeout ≤ 0 defaults to 10
// seconds.
func NewHandler(svc Streamer, logger *slog.Logger, bufSize int, writeTimeout time.Duration) *Handler {
	if bufSize <= 0 {
		bufSize = 16
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	pongWait := 60 * time.Second
	return &Handler{
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
		},
		bufSize:      bufSize,
		writeTimeout: writeTimeout,
		pongWait:     pongWait,
		pingPeriod:   pongWait * 9 / 10,
	}
}

// ServeHTTP performs the upgrade and drives the connection until the tail
// session ends or the peer goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("websocket: upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err),
		)
		return
	}
	defer conn.Close()

	client := newClient(uuid.NewString(), h.bufSize)
	logger := h.logger.With(slog.String("client_id", client.ID()))
	logger.Debug("websocket: client connected", slog.String("remote_addr", r.RemoteAddr))

	// A hijacked connection outlives r.Context(); the read pump cancels ctx
	// when the peer disconnects.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readPump(conn, cancel, logger)

	sub := viewer.Subscription{
		File:       r.URL.Query().Get("file"),
		Transport:  "websocket",
		RemoteAddr: r.RemoteAddr,
	}
	go func() {
		defer close(client.send)
		if _, err := h.svc.Stream(ctx, sub, client); err != nil {
			logger.Warn("websocket: stream rejected",
				slog.String("file", sub.File),
				slog.Any("error", err),
			)
			_ = client.Emit(ctx, tail.ErrorEvent(err))
		}
	}()

	if h.writePump(conn, client, cancel, logger) {
		deadline := time.Now().Add(h.writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}
}

// writePump drains client.send into text frames and pings the peer while the
// session is idle. It returns true when the session ended with the
// connection still healthy. On a write failure it cancels further emission
// and keeps draining until the session goroutine closes the channel.
func (h *Handler) writePump(conn *websocket.Conn, c *Client, cancel context.CancelFunc, logger *slog.Logger) bool {
	ping := time.NewTicker(h.pingPeriod)
	defer ping.Stop()

	healthy := true
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return healthy
			}
			if !healthy {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				logger.Warn("websocket: write frame failed", slog.Any("error", err))
				healthy = false
				c.fail()
				cancel()
			}

		case <-ping.C:
			if !healthy {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				logger.Debug("websocket: ping failed", slog.Any("error", err))
				healthy = false
				c.fail()
				cancel()
			}
		}
	}
}

// readPump discards client frames and cancels the session once the peer
// closes the connection or stops answering pings.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger) {
	defer cancel()
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket: read failed", slog.Any("error", err))
			}
			return
		}
	}
}
