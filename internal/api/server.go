package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"staffduty/pkg/lifecycle"
)

// shutdownTimeout bounds the drain of in-flight requests
const shutdownTimeout = 5 * time.Second

// Server runs the status API until the lifecycle handle shuts down
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer binds handler to addr
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until shutdown, then drains
func (s *Server) Run(h *lifecycle.Handle) {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status API listening", slog.String("address", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status API stopped", slog.String("error", err.Error()))
		}
		return
	case <-h.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("Status API shutdown incomplete", slog.String("error", err.Error()))
	}
}
