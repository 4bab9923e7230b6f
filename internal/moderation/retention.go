package moderation

import (
	"context"
	"log/slog"
	"time"

	"podium/internal/middleware"
	"podium/internal/repository"
)

// RetentionJob periodically purges moderation log entries older than the
// configured age. Entries whose effect is still in force are kept.
type RetentionJob struct {
	modRepo  repository.ModerationRepository
	maxAge   time.Duration
	interval time.Duration
}

// NewRetentionJob builds the purge job. A non-positive interval defaults to
// daily sweeps.
func NewRetentionJob(modRepo repository.ModerationRepository, maxAge, interval time.Duration) *RetentionJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionJob{modRepo: modRepo, maxAge: maxAge, interval: interval}
}

// Run sweeps on a ticker until the context is cancelled.
func (j *RetentionJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one purge pass.
func (j *RetentionJob) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-j.maxAge)
	purged, err := j.modRepo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		middleware.Logger.Error("moderation log retention sweep failed",
			slog.String("error", err.Error()))
		return
	}
	if purged > 0 {
		middleware.Logger.Info("purged expired moderation log entries",
			slog.Int64("purged", purged),
			slog.Time("cutoff", cutoff))
	}
}
