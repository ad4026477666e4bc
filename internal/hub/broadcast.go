package hub

import (
	"log/slog"

	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Broadcast Fabric
// -------------------------------------------------------------------------

// register adds a connection to the hub.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ConnectedClients.Set(float64(count))
	h.logger.Info("client connected",
		slog.String("remote", c.remote), slog.Int("clients", count))
}

// unregister removes a connection and its follow indices, and closes its
// send queue. Safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.removeFollowsLocked(c)
	count := len(h.clients)
	h.mu.Unlock()

	c.close()

	if present {
		h.metrics.ConnectedClients.Set(float64(count))
		h.logger.Info("client disconnected",
			slog.String("remote", c.remote), slog.Int("clients", count))
	}
}

// removeFollowsLocked tears down both directions of the follow relation
// for a connection. Caller holds the write lock; this is the single place
// the two indices change together on teardown, so they cannot disagree.
func (h *Hub) removeFollowsLocked(c *Client) {
	for sessionID := range h.follows[c] {
		if set := h.followers[sessionID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.followers, sessionID)
			}
		}
	}
	delete(h.follows, c)
}

// setFollows replaces the connection's entire follow set. Replace, not
// union: a second follow_users discards the previous subscriptions.
func (h *Hub) setFollows(c *Client, sessionIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFollowsLocked(c)

	if len(sessionIDs) == 0 {
		return
	}
	set := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		set[id] = struct{}{}
		if h.followers[id] == nil {
			h.followers[id] = make(map[*Client]struct{})
		}
		h.followers[id][c] = struct{}{}
	}
	h.follows[c] = set
}

// clearFollows empties the connection's follow set.
func (h *Hub) clearFollows(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFollowsLocked(c)
}

// sendFrame marshals and queues one frame for a single connection. A
// failed queue drops the client.
func (h *Hub) sendFrame(c *Client, frame any) bool {
	data, err := wire.Marshal(frame)
	if err != nil {
		h.logger.Error("frame encoding failed", slog.Any("error", err))
		return false
	}
	return h.deliver(c, data)
}

// deliver queues raw bytes, dropping the client on backpressure.
func (h *Hub) deliver(c *Client, data []byte) bool {
	if c.trySend(data) {
		h.metrics.BroadcastsSent.Inc()
		return true
	}

	h.logger.Warn("dropping slow client", slog.String("remote", c.remote))
	h.metrics.DroppedObservers.Inc()
	h.unregister(c)
	return false
}

// broadcastAll fans a frame out to every connection. The recipient set is
// copied under the read lock; sends happen outside it.
func (h *Hub) broadcastAll(frame any) {
	data, err := wire.Marshal(frame)
	if err != nil {
		h.logger.Error("frame encoding failed", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	recipients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		h.deliver(c, data)
	}
}

// broadcastToFollowers fans a frame out to the followers of one session.
func (h *Hub) broadcastToFollowers(sessionID string, frame any) {
	h.mu.RLock()
	set := h.followers[sessionID]
	recipients := make([]*Client, 0, len(set))
	for c := range set {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	if len(recipients) == 0 {
		return
	}

	data, err := wire.Marshal(frame)
	if err != nil {
		h.logger.Error("frame encoding failed", slog.Any("error", err))
		return
	}
	for _, c := range recipients {
		h.deliver(c, data)
	}

	h.logger.Info("sent followed_user_update",
		slog.String("session_id", sessionID),
		slog.Int("followers", len(recipients)),
	)
}

// broadcastActiveUsers pushes the current active set to every connection.
func (h *Hub) broadcastActiveUsers() {
	users := h.activeUsers()
	h.broadcastAll(wire.NewActiveUsers(users))
	h.logger.Info("broadcast active users", slog.Int("count", len(users)))
}

// broadcastSessionList pushes the session list to every connection.
func (h *Hub) broadcastSessionList() {
	h.broadcastAll(wire.NewSessionList(h.sessionList()))
}
