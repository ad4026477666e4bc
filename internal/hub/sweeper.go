package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bernd-roth/GeoTracker/internal/geo"
)

// -------------------------------------------------------------------------
// Retention Sweeper
// -------------------------------------------------------------------------

// RunSweeper prunes the in-memory history on the configured interval
// until the context is cancelled. With automatic cleanup disabled it
// just blocks; cleanup_memory requests still work.
func (h *Hub) RunSweeper(ctx context.Context) error {
	if !h.retention.EnableAutomaticCleanup {
		h.logger.Info("automatic memory cleanup disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	h.logger.Info("memory cleanup scheduled",
		slog.Duration("interval", h.retention.Interval()),
		slog.Duration("retention", h.retention.Window()),
	)

	ticker := time.NewTicker(h.retention.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := h.CleanupNow(); err != nil {
				h.logger.Error("memory cleanup failed", slog.Any("error", err))
			}
		}
	}
}

// CleanupNow prunes every point older than the retention window from the
// in-memory history. Points whose timestamp cannot be parsed are kept;
// losing live data to a format quirk is worse than holding it an extra
// cycle. Sessions left empty disappear from the list, so the list is
// re-broadcast when anything changed.
func (h *Hub) CleanupNow() (string, error) {
	cutoff := h.now().Add(-h.retention.Window())

	h.mu.Lock()
	pruned := 0
	removedSessions := 0
	for id, points := range h.history {
		kept := points[:0]
		for _, p := range points {
			ts, err := time.ParseInLocation(geo.WireTimestampFormat, p.Timestamp(), time.Local)
			if err != nil || !ts.Before(cutoff) {
				kept = append(kept, p)
				continue
			}
			pruned++
		}
		if len(kept) == 0 {
			delete(h.history, id)
			delete(h.lastActivity, id)
			removedSessions++
			continue
		}
		h.history[id] = kept
	}
	h.sweepActiveLocked()
	h.metrics.TrackedSessions.Set(float64(len(h.history)))
	h.mu.Unlock()

	if pruned > 0 {
		h.metrics.PointsPruned.Add(float64(pruned))
	}
	if pruned > 0 || removedSessions > 0 {
		h.logger.Info("memory cleanup completed",
			slog.Int("points_pruned", pruned),
			slog.Int("sessions_removed", removedSessions),
		)
		h.broadcastSessionList()
	}

	return fmt.Sprintf("Memory cleanup completed (retention: %d hours)",
		h.retention.DataRetentionHours), nil
}
