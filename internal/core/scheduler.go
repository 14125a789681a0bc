package core

// scheduler.go purges converted artifacts and history entries older than the
// retention window. It runs once at start and then every interval until ctx
// is cancelled. Failures are logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// CleanupConfig holds the cleanup schedule.
type CleanupConfig struct {
	Retention time.Duration // How long artifacts are kept (default: 24h)
	Interval  time.Duration // How often to run (default: 1h)
}

func (c CleanupConfig) withDefaults() CleanupConfig {
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// StartCleanupScheduler blocks running cleanup jobs until ctx is cancelled.
// Run it in its own goroutine.
func (s *Service) StartCleanupScheduler(ctx context.Context, cfg CleanupConfig) {
	cfg = cfg.withDefaults()
	slog.Info("cleanup scheduler started",
		"retention", cfg.Retention.String(),
		"interval", cfg.Interval.String(),
	)

	s.runCleanupJob(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.runCleanupJob(ctx, cfg)
		}
	}
}

func (s *Service) runCleanupJob(ctx context.Context, cfg CleanupConfig) {
	start := time.Now()

	artifacts, entries, err := s.Cleanup(ctx, cfg.Retention)
	if err != nil {
		slog.Error("cleanup failed", "error", err)
	}
	if artifacts > 0 || entries > 0 {
		slog.Info("cleanup removed expired data",
			"artifacts", artifacts,
			"history_entries", entries,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("cleanup found nothing to remove")
}
