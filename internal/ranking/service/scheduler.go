package service

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs RecalculateAll once at start and then every interval until
// its context is cancelled. Failed categories are picked up by the next tick.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(service *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{service: service, interval: interval, logger: logger}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.service.RecalculateAll(ctx); err != nil {
		s.logger.ErrorContext(ctx, "rank recalculation pass failed", "error", err)
	}
}
