package background

import (
	"context"
	"log/slog"
	"time"
)

// RetentionStore deletes rows that have aged past a cutoff.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically prunes aged login attempts and audit records.
// Attempts older than the retention period can no longer influence a lockout
// decision, so they are only dead weight on the attempt indexes.
type CleanupManager struct {
	attempts         RetentionStore
	auditLogs        RetentionStore
	logger           *slog.Logger
	interval         time.Duration
	attemptRetention time.Duration
	auditRetention   time.Duration
	stopCh           chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attempts RetentionStore,
	auditLogs RetentionStore,
	logger *slog.Logger,
	interval, attemptRetention, auditRetention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attempts:         attempts,
		auditLogs:        auditLogs,
		logger:           logger,
		interval:         interval,
		attemptRetention: attemptRetention,
		auditRetention:   auditRetention,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cm.prune(cleanupCtx, "login_attempts", cm.attempts, cm.attemptRetention)
	cm.prune(cleanupCtx, "audit_logs", cm.auditLogs, cm.auditRetention)
}

func (cm *CleanupManager) prune(ctx context.Context, name string, store RetentionStore, retention time.Duration) {
	if store == nil || retention <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-retention)
	rowsDeleted, err := store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		cm.logger.Error("retention cleanup failed",
			slog.String("table", name),
			slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("retention cleanup completed",
			slog.String("table", name),
			slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
