package server

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule starts periodic refreshes on the configured cron spec.
// The returned stop function waits for a running refresh to finish.
func (s *Server) Schedule(ctx context.Context) (stop func(), err error) {
	spec := s.config.Server.RefreshCron
	if spec == "" || s.refresher == nil {
		return func() {}, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.RefreshNow(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("refresh scheduled", zap.String("cron", spec))

	return func() { <-c.Stop().Done() }, nil
}

// RefreshNow runs one refresh and reloads the datasets. Overlapping calls are skipped.
func (s *Server) RefreshNow(ctx context.Context) bool {
	if s.refresher == nil || !s.refreshing.CompareAndSwap(false, true) {
		s.metrics.refreshRuns.WithLabelValues("skipped").Inc()
		return false
	}
	defer s.refreshing.Store(false)

	res, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.metrics.refreshRuns.WithLabelValues("error").Inc()
		s.logger.Error("scheduled refresh failed", zap.Error(err))
		return false
	}

	s.metrics.refreshRuns.WithLabelValues("ok").Inc()
	s.logger.Info("scheduled refresh complete",
		zap.String("run_id", res.RunID),
		zap.Int("petitions", res.Petitions),
		zap.Duration("duration", res.Duration))
	_ = s.Reload()
	return true
}
