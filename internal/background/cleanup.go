package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionCleaner deletes sessions whose lifetime has ended
type SessionCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupManager periodically removes expired sessions from the database.
// Expired sessions are already treated as anonymous on lookup; this only
// keeps the table from growing.
type CleanupManager struct {
	sessions SessionCleaner
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// DefaultCleanupInterval is used when a non-positive interval is supplied
const DefaultCleanupInterval = time.Hour

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sessions SessionCleaner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		logger.Warn("non-positive cleanup interval, using default",
			slog.Duration("interval", interval),
			slog.Duration("default", DefaultCleanupInterval),
		)
		interval = DefaultCleanupInterval
	}
	return &CleanupManager{
		sessions: sessions,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then on every tick until Stop is
// called or ctx is done. It blocks; run it in its own goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("session cleanup stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("session cleanup context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := cm.sessions.CleanupExpired(cleanupCtx, cm.now().UTC())
	if err != nil {
		cm.logger.Error("failed to cleanup expired sessions", slog.Any("error", err))
		return
	}

	if removed > 0 {
		cm.logger.Info("expired sessions removed", slog.Int64("rows_deleted", removed))
	}
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
