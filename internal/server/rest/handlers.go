package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tripwire/logviewer/internal/activity"
	"github.com/tripwire/logviewer/internal/fault"
	"github.com/tripwire/logviewer/internal/listing"
)

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	svc    Viewer
	stream http.Handler
	ws     http.Handler
	logger *slog.Logger
}

// NewServer creates a Server. stream and ws serve the SSE and WebSocket
// endpoints; either may be nil to leave that transport unmounted.
func NewServer(svc Viewer, stream, ws http.Handler, logger *slog.Logger) *Server {
	return &Server{svc: svc, stream: stream, ws: ws, logger: logger}
}

// errorBody is the JSON shape of every failed API call.
type errorBody struct {
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	ErrorType fault.Type `json:"errorType,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes err as an error body. code 0 derives the status from
// the error type.
func writeJSONError(w http.ResponseWriter, code int, err error) {
	fe := fault.Classify(err)
	if code == 0 {
		code = fault.HTTPStatus(fe.Type)
	}
	writeJSON(w, code, errorBody{Error: fe.Message, ErrorType: fe.Type})
}

// handleHealthz responds to GET /healthz without authentication.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"activeSessions": s.svc.ActiveSessions(),
	})
}

// handleConfig responds to GET {base}/api/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Config())
}

type setDirectoryRequest struct {
	Path string `json:"path"`
}

// handleSetDirectory responds to POST {base}/api/setDirectory. Every
// rejection is a 400 regardless of its type.
func (s *Server) handleSetDirectory(w http.ResponseWriter, r *http.Request) {
	var req setDirectoryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fault.Wrap(fault.BadRequest, "request body must be a JSON object with a path", err))
		return
	}

	path, err := s.svc.SetDirectory(req.Path, actor(r))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"path":    path,
		"message": "log directory set",
	})
}

type fileListBody struct {
	errorBody
	Files     []listing.Entry `json:"files"`
	Directory string          `json:"directory,omitempty"`
}

// handleFiles responds to GET {base}/api/files. Failures are reported in the
// body with status 200 so the file picker can render them inline.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Files()
	if err != nil {
		fe := fault.Classify(err)
		writeJSON(w, http.StatusOK, fileListBody{
			errorBody: errorBody{Error: fe.Message, ErrorType: fe.Type},
			Files:     []listing.Entry{},
		})
		return
	}
	writeJSON(w, http.StatusOK, fileListBody{
		errorBody: errorBody{Success: true},
		Files:     list.Files,
		Directory: list.Directory,
	})
}

// handleContent responds to GET {base}/api/content?file=.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Content(r.URL.Query().Get("file"))
	if err != nil {
		writeJSONError(w, 0, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"content":      c.Content,
		"fileName":     c.FileName,
		"size":         c.Size,
		"lastModified": c.LastModified,
	})
}

// handleSessions responds to GET {base}/api/sessions?limit=.
//
// limit defaults to 50 and is capped at 1000.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := activity.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, fault.New(fault.BadRequest, "'limit' must be a positive integer"))
			return
		}
		limit = min(n, 1000)
	}

	records, err := s.svc.Sessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("rest: session history query failed", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, fault.Wrap(fault.IOError, "failed to query sessions", err))
		return
	}
	if records == nil {
		records = []activity.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": records,
	})
}

// actor identifies the caller in the audit trail: the token subject when
// authenticated, otherwise the client address.
func actor(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok && c.Subject != "" {
		return c.Subject
	}
	return r.RemoteAddr
}
