// Package server carries the HTTP surface: router assembly, middleware,
// and the REST and streaming handlers.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server owns the router and listen port.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
}

// New assembles the middleware chain. The request timeout is applied per
// route group by the handlers: deliberation streams run for minutes and
// must not inherit the short management timeout.
func New(port int, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "llm-council")
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

// ManagementTimeout bounds every non-streaming endpoint.
const ManagementTimeout = 30 * time.Second

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}
