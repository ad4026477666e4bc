package hub

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bernd-roth/GeoTracker/internal/store"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Connection Handler
// -------------------------------------------------------------------------

// Producers and observers connect from apps and browsers on other
// origins, so the endpoint accepts any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		return
	}

	c := newClient(h, conn)
	h.register(c)
	go c.writePump()

	h.readLoop(r.Context(), c)
}

// readLoop reads frames until the connection drops, dispatching each one.
func (h *Hub) readLoop(ctx context.Context, c *Client) {
	defer h.unregister(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("connection error",
					slog.String("remote", c.remote), slog.Any("error", err))
			}
			return
		}
		h.dispatch(ctx, c, data)
	}
}

// dispatch routes one inbound text frame. Malformed or incomplete frames
// are logged and dropped; the connection stays up.
func (h *Hub) dispatch(ctx context.Context, c *Client, data []byte) {
	// The heartbeat travels as a bare string, not JSON.
	if string(data) == wire.Heartbeat {
		h.metrics.IncFrame("heartbeat")
		h.deliver(c, []byte(wire.HeartbeatReply))
		return
	}

	frame, err := wire.DecodeFrame(data)
	if err != nil {
		h.logger.Warn("dropping malformed frame",
			slog.String("remote", c.remote), slog.Any("error", err))
		h.metrics.IncFrame("malformed")
		return
	}

	switch frame.Type {
	case wire.TypePing:
		h.metrics.IncFrame(frame.Type)
		h.sendFrame(c, wire.NewPong(h.now().Format(time.RFC3339)))

	case wire.TypeRequestHistory:
		h.metrics.IncFrame(frame.Type)
		h.sendHistory(c)

	case wire.TypeCleanupMemory:
		h.metrics.IncFrame(frame.Type)
		message, err := h.CleanupNow()
		h.sendFrame(c, wire.NewCleanupResponse(err == nil, message))

	case wire.TypeGetActiveUsers:
		h.metrics.IncFrame(frame.Type)
		h.sendFrame(c, wire.NewActiveUsers(h.activeUsers()))

	case wire.TypeFollowUsers:
		h.metrics.IncFrame(frame.Type)
		h.handleFollow(ctx, c, frame.SessionIDs)

	case wire.TypeUnfollowUsers:
		h.metrics.IncFrame(frame.Type)
		h.clearFollows(c)
		h.sendFrame(c, wire.NewUnfollowResponse())

	case wire.TypeRequestSessions:
		h.metrics.IncFrame(frame.Type)
		h.sendFrame(c, wire.NewSessionList(h.sessionList()))

	case wire.TypeDeleteSession:
		h.metrics.IncFrame(frame.Type)
		h.handleDelete(ctx, c, frame.SessionID)

	case wire.TypeGetWeather, wire.TypeGetWeatherSummary,
		wire.TypeGetBarometer, wire.TypeGetBarometerSummary:
		h.metrics.IncFrame(frame.Type)
		h.handleEnvironment(ctx, c, frame)

	case wire.TypeUploadSession:
		h.metrics.IncFrame(frame.Type)
		h.handleUpload(ctx, c, frame)

	default:
		h.handleUntyped(ctx, c, frame)
	}
}

// handleUntyped covers the frames without a type key: waypoints first,
// everything else is treated as live telemetry.
func (h *Hub) handleUntyped(ctx context.Context, c *Client, frame *wire.Frame) {
	if frame.IsWaypoint() {
		h.metrics.IncFrame("waypoint")
		if err := h.store.SaveWaypoint(ctx, frame); err != nil && err != store.ErrUnavailable {
			h.logger.Warn("failed to save waypoint",
				slog.String("session_id", frame.SessionID), slog.Any("error", err))
		}
		return
	}

	tel, err := frame.Telemetry()
	if err != nil {
		h.logger.Warn("dropping incomplete telemetry frame",
			slog.String("remote", c.remote), slog.Any("error", err))
		h.metrics.IncFrame("malformed")
		return
	}

	h.metrics.IncFrame("telemetry")
	h.ingest(ctx, c, tel)
}

// sendHistory replays the whole in-memory history in batches, then the
// session list, then the completion marker.
func (h *Hub) sendHistory(c *Client) {
	points := h.historySnapshot()

	for start := 0; start < len(points); start += historyBatchSize {
		end := start + historyBatchSize
		if end > len(points) {
			end = len(points)
		}
		if !h.sendFrame(c, wire.NewHistoryBatch(points[start:end])) {
			return
		}
		time.Sleep(historyBatchPause)
	}

	if !h.sendFrame(c, wire.NewSessionList(h.sessionList())) {
		return
	}
	h.sendFrame(c, wire.NewHistoryComplete())

	h.logger.Info("history replay complete",
		slog.String("remote", c.remote), slog.Int("points", len(points)))
}

// handleFollow replaces the connection's follow set with the active
// subset of the requested sessions and sends each one's latest state.
func (h *Hub) handleFollow(ctx context.Context, c *Client, sessionIDs []string) {
	following := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if h.isActive(id) {
			following = append(following, id)
		}
	}

	h.setFollows(c, following)

	for _, id := range following {
		point, ok := h.latestPoint(id)
		if !ok {
			continue
		}
		h.sendFrame(c, wire.NewFollowedUserUpdate(point, h.lapSummaries(ctx, id)))
	}

	h.sendFrame(c, wire.NewFollowResponse(following))
	h.logger.Info("follow set replaced",
		slog.String("remote", c.remote),
		slog.Int("requested", len(sessionIDs)),
		slog.Int("following", len(following)),
	)
}

// handleDelete removes a finished session from memory and the store.
// Unknown and still-active sessions are refused.
func (h *Hub) handleDelete(ctx context.Context, c *Client, sessionID string) {
	if ok, reason := h.removeSession(sessionID); !ok {
		h.sendFrame(c, wire.NewDeleteResponse(sessionID, false, reason))
		return
	}

	// Memory is authoritative for the response; a store failure only
	// leaves orphaned rows behind.
	if err := h.store.DeleteSession(ctx, sessionID); err != nil && err != store.ErrUnavailable {
		h.logger.Warn("failed to delete session rows",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}

	h.broadcastAll(wire.NewSessionDeleted(sessionID))
	h.sendFrame(c, wire.NewDeleteResponse(sessionID, true, ""))
	h.logger.Info("session deleted", slog.String("session_id", sessionID))
}

// removeSession evicts a session from the history if it exists and is
// not active.
func (h *Hub) removeSession(sessionID string) (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepActiveLocked()

	if _, exists := h.history[sessionID]; !exists {
		return false, "Session does not exist"
	}
	if _, active := h.active[sessionID]; active {
		return false, "Cannot delete active session"
	}

	delete(h.history, sessionID)
	delete(h.lastActivity, sessionID)
	h.metrics.TrackedSessions.Set(float64(len(h.history)))
	return true, ""
}

// handleEnvironment serves the four stored weather and barometer reads.
func (h *Hub) handleEnvironment(ctx context.Context, c *Client, frame *wire.Frame) {
	sessionID := frame.SessionID
	if sessionID == "" {
		h.sendEnvironmentError(c, frame.Type, "sessionId is required")
		return
	}

	switch frame.Type {
	case wire.TypeGetWeather:
		weather, err := h.store.WeatherData(ctx, sessionID)
		if err != nil {
			h.sendEnvironmentError(c, frame.Type, err.Error())
			return
		}
		h.sendFrame(c, wire.WeatherDataFrame{
			Type: wire.TypeWeatherData, SessionID: sessionID, Weather: weather})

	case wire.TypeGetWeatherSummary:
		summary, err := h.store.WeatherSummary(ctx, sessionID)
		if err != nil {
			h.sendEnvironmentError(c, frame.Type, err.Error())
			return
		}
		h.sendFrame(c, wire.WeatherSummaryFrame{
			Type: wire.TypeWeatherSummary, Summary: summary})

	case wire.TypeGetBarometer:
		barometer, err := h.store.BarometerData(ctx, sessionID)
		if err != nil {
			h.sendEnvironmentError(c, frame.Type, err.Error())
			return
		}
		h.sendFrame(c, wire.BarometerDataFrame{
			Type: wire.TypeBarometerData, SessionID: sessionID, Barometer: barometer})

	case wire.TypeGetBarometerSummary:
		summary, err := h.store.BarometerSummary(ctx, sessionID)
		if err != nil {
			h.sendEnvironmentError(c, frame.Type, err.Error())
			return
		}
		h.sendFrame(c, wire.BarometerSummaryFrame{
			Type: wire.TypeBarometerSummary, Summary: summary})
	}
}

// sendEnvironmentError sends the matching response frame with only its
// error field populated.
func (h *Hub) sendEnvironmentError(c *Client, requestType, message string) {
	switch requestType {
	case wire.TypeGetWeather:
		h.sendFrame(c, wire.WeatherDataFrame{Type: wire.TypeWeatherData, Error: message})
	case wire.TypeGetWeatherSummary:
		h.sendFrame(c, wire.WeatherSummaryFrame{Type: wire.TypeWeatherSummary, Error: message})
	case wire.TypeGetBarometer:
		h.sendFrame(c, wire.BarometerDataFrame{Type: wire.TypeBarometerData, Error: message})
	case wire.TypeGetBarometerSummary:
		h.sendFrame(c, wire.BarometerSummaryFrame{Type: wire.TypeBarometerSummary, Error: message})
	}
}
