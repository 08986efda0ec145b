package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler re-runs every pipeline on a periodic interval.
// Ticks never overlap: a tick that arrives while a pass is running is dropped.
type Scheduler struct {
	interval time.Duration
	runner   *Runner
}

// NewScheduler creates a scheduler that runs all pipelines of runner.
func NewScheduler(interval time.Duration, runner *Runner) *Scheduler {
	return &Scheduler{interval: interval, runner: runner}
}

// Start runs one pass immediately, then one per tick, until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting pipeline scheduler", "interval", s.interval)

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	results, err := s.runner.RunAll(ctx)
	if err != nil {
		slog.Error("[Scheduler] Pipeline pass failed",
			"error", err,
			"completed", len(results),
			"duration", time.Since(start),
		)
		return
	}
	slog.Info("[Scheduler] Pipeline pass complete",
		"pipelines", len(results),
		"duration", time.Since(start),
	)
}
