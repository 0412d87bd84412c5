package session

import (
	"context"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically removes
// sessions idle for longer than ttl. It stops when ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		m.logger.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				m.Sweep(ctx, ttl)
			case <-ctx.Done():
				m.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep deletes expired sessions once and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) int64 {
	deleted, err := m.repo.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		m.logger.Error("Session sweeper failed to cleanup expired sessions", "error", err)
		return 0
	}
	if deleted > 0 {
		// Cached charts may belong to removed sessions.
		m.charts.Flush()
		m.logger.Info("Session sweeper cleaned up expired sessions", "count", deleted)
	}
	return deleted
}
