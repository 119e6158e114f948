package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Run loads the datasets, starts the watcher and refresh schedule, and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	_ = s.Reload()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := s.Watch(ctx); err != nil {
			s.logger.Warn("data directory not watched, restart to pick up new data", zap.Error(err))
		}
	}()

	stopSchedule, err := s.Schedule(ctx)
	if err != nil {
		return err
	}
	defer stopSchedule()

	httpServer := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
