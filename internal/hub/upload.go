package hub

import (
	"context"
	"log/slog"

	"github.com/bernd-roth/GeoTracker/internal/store"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Bulk Upload
// -------------------------------------------------------------------------

// handleUpload persists a whole recorded session in one frame, refusing
// uploads the duplicate detector matches to an already stored session.
func (h *Hub) handleUpload(ctx context.Context, c *Client, frame *wire.Frame) {
	sessionID := frame.SessionID
	if sessionID == "" {
		h.sendFrame(c, wire.UploadResponseFrame{
			Type: wire.TypeUploadResponse, Success: false, Reason: "sessionId is required"})
		return
	}

	points := uploadPoints(frame, sessionID)
	if len(points) == 0 {
		h.sendFrame(c, wire.UploadResponseFrame{
			Type: wire.TypeUploadResponse, SessionID: sessionID,
			Success: false, Reason: "no points in upload"})
		return
	}

	if dup := h.findDuplicate(ctx, frame, points); dup != nil {
		h.logger.Info("refusing duplicate upload",
			slog.String("session_id", sessionID),
			slog.String("duplicate_of", dup.SessionID),
		)
		h.sendFrame(c, wire.UploadResponseFrame{
			Type:        wire.TypeUploadResponse,
			SessionID:   sessionID,
			Success:     false,
			DuplicateOf: dup.SessionID,
			Reason:      "duplicate of an existing session",
		})
		return
	}

	saved := 0
	for _, p := range points {
		if err := h.store.SaveTrackingPoint(ctx, p, nil); err != nil {
			if err != store.ErrUnavailable {
				h.logger.Warn("failed to persist uploaded point",
					slog.String("session_id", sessionID), slog.Any("error", err))
			}
			h.metrics.StoreWriteFailures.Inc()
			continue
		}
		saved++
	}

	// Uploaded sessions also join the in-memory history so they show up
	// in session_list and replay without a restart. They are finished
	// recordings, so the liveness index is left alone.
	h.mu.Lock()
	h.history[sessionID] = append(h.history[sessionID], points...)
	h.metrics.TrackedSessions.Set(float64(len(h.history)))
	h.mu.Unlock()

	h.sendFrame(c, wire.UploadResponseFrame{
		Type:       wire.TypeUploadResponse,
		SessionID:  sessionID,
		Success:    true,
		PointCount: len(points),
	})
	h.broadcastSessionList()

	h.logger.Info("session upload accepted",
		slog.String("session_id", sessionID),
		slog.Int("points", len(points)),
		slog.Int("persisted", saved),
	)
}

// uploadPoints extracts the frame's point list, stamping the session id
// onto every point.
func uploadPoints(frame *wire.Frame, sessionID string) []wire.Point {
	raw, ok := frame.Raw["points"].([]any)
	if !ok {
		return nil
	}

	points := make([]wire.Point, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		p := wire.Point(m).Clone()
		p["sessionId"] = sessionID
		points = append(points, p)
	}
	return points
}

// findDuplicate resolves the uploading user and runs the detector. An
// unknown user cannot have stored sessions to collide with, and detector
// failures never block an upload.
func (h *Hub) findDuplicate(ctx context.Context, frame *wire.Frame, points []wire.Point) *store.CandidateSession {
	firstname := stringField(frame, "firstname", "person")
	if firstname == "" && len(points) > 0 {
		firstname = points[0].Name()
	}
	if firstname == "" {
		return nil
	}

	userID, found, err := h.store.UserIDByName(ctx, firstname,
		stringField(frame, "lastname"), stringField(frame, "birthdate"))
	if err != nil {
		if err != store.ErrUnavailable {
			h.logger.Warn("duplicate check skipped, user lookup failed",
				slog.Any("error", err))
		}
		return nil
	}
	if !found {
		return nil
	}

	dup, err := h.uploads.Check(ctx, userID, points)
	if err != nil {
		h.logger.Warn("duplicate check failed, accepting upload",
			slog.Any("error", err))
		return nil
	}
	return dup
}

// stringField returns the first non-empty string among the named keys of
// the frame.
func stringField(frame *wire.Frame, keys ...string) string {
	for _, key := range keys {
		if s, ok := frame.Raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
