package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps http.Server with logging and graceful shutdown
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server
func New(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		logger: logger,
	}
}

// Run starts the HTTP server and blocks until it stops. A server
// closed by Shutdown returns nil.
func (s *Server) Run() error {
	s.logger.Info("starting http server",
		slog.String("addr", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown attempts a graceful shutdown within the context deadline,
// forcing a close if that fails
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("graceful shutdown failed, forcing shutdown",
			slog.String("error", err.Error()),
		)
		return s.server.Close()
	}

	s.logger.Info("server stopped gracefully")
	return nil
}
