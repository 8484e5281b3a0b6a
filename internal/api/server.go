package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/sunspool/sunspool/internal/auth"
	"github.com/sunspool/sunspool/internal/config"
)

// Server wraps the HTTP server and mux for the telemetry API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates an API server wired with all routes.
func NewServer(cfg *config.ServerConfig, registry *auth.Registry, st SampleStore, cache RealtimeCache) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /health", HandleHealth())

	// Authenticated routes
	authed := http.NewServeMux()
	authed.Handle("POST /v1/ingest", HandleIngest(st, cache, cfg.MaxSamplesPerRequest, int64(cfg.MaxRequestBytes)))
	authed.Handle("GET /v1/realtime", HandleRealtime(st, cache))
	authed.Handle("GET /v1/series", HandleSeries(st, NewSeriesCache(cfg.SeriesCacheTTL)))

	limitedAuthed := RequestBodyLimitMiddleware(int64(cfg.MaxRequestBytes), authed)
	mux.Handle("/v1/", AuthMiddleware(registry, limitedAuthed))

	handler := RequestLogMiddleware(mux)
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler: handler,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
