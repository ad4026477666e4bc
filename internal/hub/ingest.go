package hub

import (
	"context"
	"log/slog"

	"github.com/bernd-roth/GeoTracker/internal/geo"
	"github.com/bernd-roth/GeoTracker/internal/store"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Ingest Pipeline
// -------------------------------------------------------------------------

// ingest runs one validated telemetry frame through the pipeline: gate,
// reset detection, liveness touch, persistence, history append, fan-out.
// Store failures are logged and do not stop the pipeline; live visibility
// outranks durability.
func (h *Hub) ingest(ctx context.Context, c *Client, tel *wire.Telemetry) {
	timestamp := geo.ParseClientTimestamp(
		tel.String("currentDateTime"),
		tel.String("formattedTimestamp"),
		tel.String("startDateTime"),
	).Format(geo.WireTimestampFormat)

	// Gate first. Invalid coordinates keep the session alive (a GPS
	// outage must not time it out) but never reach the store, the
	// history, or a normal update.
	if ok, reason := geo.ValidateCoordinates(tel.Latitude, tel.Longitude); !ok {
		h.logger.Warn("invalid coordinates",
			slog.String("session_id", tel.SessionID),
			slog.String("reason", reason),
		)
		h.metrics.InvalidCoordinates.Inc()
		h.touchSession(tel.SessionID)

		h.broadcastAll(wire.NewInvalidCoordinates(tel.InvalidPoint(timestamp, reason)))
		return
	}

	sessionID := tel.SessionID
	if h.resets.ShouldReset(sessionID, tel.Latitude, tel.Longitude, tel.Distance) {
		newID := h.resets.NewSessionID(sessionID)
		h.archiveSession(sessionID, h.resets.ArchiveKey(sessionID))
		h.resets.Forget(sessionID)
		h.metrics.SessionResets.Inc()
		sessionID = newID
	}

	h.resets.Observe(sessionID, tel.Latitude, tel.Longitude, tel.Distance)
	newlyActive := h.touchSession(sessionID)

	point := tel.BroadcastPoint(timestamp, sessionID)

	if err := h.store.SaveTrackingPoint(ctx, point, nil); err != nil {
		if err != store.ErrUnavailable {
			h.logger.Warn("failed to persist point, continuing in-memory",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)
		}
		h.metrics.StoreWriteFailures.Inc()
	}

	h.appendHistory(sessionID, point)
	h.metrics.PointsIngested.Inc()

	if newlyActive {
		h.broadcastActiveUsers()
		c.lastActiveUsers = h.now()
	}

	h.broadcastAll(wire.NewUpdate(point))
	h.notifyFollowers(ctx, sessionID, point)

	// Opportunistic pacing: at most one active_users push per interval
	// from within this connection's loop.
	if h.now().Sub(c.lastActiveUsers) > activeUsersInterval {
		h.broadcastActiveUsers()
		c.lastActiveUsers = h.now()
	}
}

// notifyFollowers sends the reduced follower shape, enriched with the
// session's stored laps.
func (h *Hub) notifyFollowers(ctx context.Context, sessionID string, point wire.Point) {
	h.mu.RLock()
	hasFollowers := len(h.followers[sessionID]) > 0
	h.mu.RUnlock()
	if !hasFollowers {
		return
	}

	laps := h.lapSummaries(ctx, sessionID)
	h.broadcastToFollowers(sessionID, wire.NewFollowedUserUpdate(point, laps))
}

// lapSummaries fetches the session's laps, tolerating a missing store.
func (h *Hub) lapSummaries(ctx context.Context, sessionID string) []wire.LapSummary {
	laps, err := h.store.LapTimesForSession(ctx, sessionID)
	if err != nil {
		if err != store.ErrUnavailable {
			h.logger.Warn("failed to load lap times",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)
		}
		return nil
	}
	return store.Summaries(laps)
}
