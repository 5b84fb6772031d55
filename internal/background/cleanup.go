package background

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper deletes session registry rows that can no longer resolve
type Sweeper interface {
	DeleteForDeletedUsers(ctx context.Context) (int64, error)
	DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically sweeps the session registry. Sessions of
// soft deleted users are always removed; sessions older than maxAge are
// removed when maxAge is positive.
type CleanupManager struct {
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sweeper Sweeper,
	logger *slog.Logger,
	interval time.Duration,
	maxAge time.Duration,
) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start runs a sweep immediately and then on every tick until ctx is done
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	orphaned, err := cm.sweeper.DeleteForDeletedUsers(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep sessions of deleted users", slog.Any("error", err))
	}

	var aged int64
	if cm.maxAge > 0 {
		aged, err = cm.sweeper.DeleteIssuedBefore(cleanupCtx, cm.now().Add(-cm.maxAge))
		if err != nil {
			cm.logger.Error("failed to sweep aged sessions", slog.Any("error", err))
		}
	}

	if orphaned > 0 || aged > 0 {
		cm.logger.Info("session cleanup completed",
			slog.Int64("deleted_user_sessions", orphaned),
			slog.Int64("aged_sessions", aged),
		)
	}
}
