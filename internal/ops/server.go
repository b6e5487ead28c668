package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server — HTTP сервер с graceful shutdown.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer создаёт сервер на addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start запускает сервер в горутине. Ошибка прослушивания
// передаётся в onError.
func (s *Server) Start(onError func(error)) {
	go func() {
		s.logger.Info("listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
			if onError != nil {
				onError(err)
			}
		}
	}()
}

// Shutdown останавливает сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
