package rest

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig controls how NewRouter mounts the API.
type RouterConfig struct {
	// BasePath prefixes every API route, e.g. "/log-viewer".
	BasePath string

	// Auth enables JWT validation on the API routes. Nil leaves them open.
	Auth *JWTConfig

	// Metrics, when set, is served at /metrics without authentication.
	Metrics http.Handler
}

// NewRouter returns a configured chi.Router for the log viewer.
//
// Route layout:
//
//	GET  /healthz                    liveness probe (no authentication)
//	GET  /metrics                    Prometheus exposition (no authentication)
//	GET  {base}/api/config           base path and current log directory
//	POST {base}/api/setDirectory     change the log directory
//	GET  {base}/api/files            list viewable files
//	GET  {base}/api/content?file=    one-shot file read
//	GET  {base}/api/sessions?limit=  recent tail session history
//	GET  {base}/api/stream?file=     live tail over Server-Sent Events
//	GET  {base}/api/ws?file=         live tail over WebSocket
func NewRouter(srv *Server, rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)
	if rc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rc.Metrics)
	}

	r.Route(strings.TrimSuffix(rc.BasePath, "/")+"/api", func(r chi.Router) {
		if rc.Auth != nil {
			r.Use(JWTMiddleware(*rc.Auth))
		}

		r.Get("/config", srv.handleConfig)
		r.Post("/setDirectory", srv.handleSetDirectory)
		r.Get("/files", srv.handleFiles)
		r.Get("/content", srv.handleContent)
		r.Get("/sessions", srv.handleSessions)
		if srv.stream != nil {
			r.Method(http.MethodGet, "/stream", srv.stream)
		}
		if srv.ws != nil {
			r.Method(http.MethodGet, "/ws", srv.ws)
		}
	})

	return r
}
