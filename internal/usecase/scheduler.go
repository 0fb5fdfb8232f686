package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"AINewsCrawler/internal/ports"
)

// Scheduler runs the pipeline on the cron driver's cadence. A trigger
// that fires while the previous run is still crawling is skipped, so a
// slow site cannot stack overlapping runs.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger

	running atomic.Bool
}

func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the driver. A nil driver or pipeline
// makes Start a no-op, which covers one-shot invocations.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		s.trigger(ctx, trigger)
	})
}

func (s *Scheduler) trigger(ctx context.Context, at time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous pipeline run still active, skipping trigger", "trigger", at)
		return
	}
	defer s.running.Store(false)

	if err := s.pipeline.Run(ctx, at); err != nil {
		s.logger.Error("scheduled pipeline run failed", "trigger", at, "error", err)
	}
}

// Stop tears down the underlying driver. In-flight runs finish on their
// own run timeout.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
