// Package hub is the stateful core of the tracking server. It terminates
// client connections, runs the ingest pipeline (coordinate gate, reset
// detection, persistence, history append), maintains the liveness and
// follow/follower indices, fans out broadcasts, and sweeps the in-memory
// history on the retention schedule.
package hub

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bernd-roth/GeoTracker/internal/config"
	"github.com/bernd-roth/GeoTracker/internal/dedup"
	"github.com/bernd-roth/GeoTracker/internal/geo"
	hubmetrics "github.com/bernd-roth/GeoTracker/internal/metrics"
	"github.com/bernd-roth/GeoTracker/internal/store"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// -------------------------------------------------------------------------
// Hub Constants
// -------------------------------------------------------------------------

const (
	// activityTimeout is the idle period after which a session leaves the
	// active set. Compile-time constant, like the reset thresholds.
	activityTimeout = 60 * time.Second

	// historyBatchSize is the number of points per history_batch frame.
	historyBatchSize = 100

	// historyBatchPause is the minimal yield between replay batches so a
	// large replay does not monopolize the connection's writer.
	historyBatchPause = time.Millisecond

	// activeUsersInterval paces the opportunistic active_users broadcast
	// issued from within a connection's ingest loop.
	activeUsersInterval = 30 * time.Second
)

// -------------------------------------------------------------------------
// Hub
// -------------------------------------------------------------------------

// Hub owns all connection-shared state. A single RWMutex guards the
// history, liveness, and subscription indices; no broadcast holds the
// lock across a network send (recipient sets are copied first).
type Hub struct {
	logger    *slog.Logger
	metrics   *hubmetrics.Collector
	store     *store.Store
	resets    *geo.ResetDetector
	uploads   *dedup.Detector
	retention config.RetentionConfig

	// now is the clock source, replaceable in tests.
	now func() time.Time

	mu           sync.RWMutex
	history      map[string][]wire.Point
	active       map[string]struct{}
	lastActivity map[string]time.Time
	clients      map[*Client]struct{}
	follows      map[*Client]map[string]struct{}
	followers    map[string]map[*Client]struct{}
}

// New creates a hub. The store may be nil (degraded, memory-only mode);
// the detector and collector must not be.
func New(st *store.Store, uploads *dedup.Detector, retention config.RetentionConfig,
	collector *hubmetrics.Collector, logger *slog.Logger) *Hub {

	return &Hub{
		logger:    logger.With(slog.String("component", "hub")),
		metrics:   collector,
		store:     st,
		resets:    geo.NewResetDetector(logger),
		uploads:   uploads,
		retention: retention,
		now:       time.Now,

		history:      make(map[string][]wire.Point),
		active:       make(map[string]struct{}),
		lastActivity: make(map[string]time.Time),
		clients:      make(map[*Client]struct{}),
		follows:      make(map[*Client]map[string]struct{}),
		followers:    make(map[string]map[*Client]struct{}),
	}
}

// Preload seeds the in-memory history, typically from the store at
// startup. Existing history is replaced.
func (h *Hub) Preload(history map[string][]wire.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = make(map[string][]wire.Point, len(history))
	points := 0
	for id, pts := range history {
		h.history[id] = pts
		points += len(pts)
	}
	h.metrics.TrackedSessions.Set(float64(len(h.history)))

	h.logger.Info("history preloaded",
		slog.Int("sessions", len(history)),
		slog.Int("points", points),
	)
}

// -------------------------------------------------------------------------
// Session Registry
// -------------------------------------------------------------------------

// touchSession marks activity on a session and reports whether it newly
// entered the active set.
func (h *Hub) touchSession(sessionID string) (newlyActive bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, wasActive := h.active[sessionID]
	h.active[sessionID] = struct{}{}
	h.lastActivity[sessionID] = h.now()

	if !wasActive {
		h.logger.Info("session became active",
			slog.String("session_id", sessionID),
			slog.Int("total_active", len(h.active)),
		)
	}
	h.metrics.ActiveSessions.Set(float64(len(h.active)))
	return !wasActive
}

// sweepActiveLocked drops sessions whose last activity is older than the
// timeout. The explicit active set is a cache over lastActivity, rebuilt
// at every query point. Caller holds the write lock.
func (h *Hub) sweepActiveLocked() {
	cutoff := h.now().Add(-activityTimeout)
	for id := range h.active {
		if last, ok := h.lastActivity[id]; !ok || last.Before(cutoff) {
			delete(h.active, id)
			h.logger.Info("session became inactive", slog.String("session_id", id))
		}
	}
	h.metrics.ActiveSessions.Set(float64(len(h.active)))
}

// isActive sweeps and reports whether the session is currently active.
func (h *Hub) isActive(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepActiveLocked()
	_, ok := h.active[sessionID]
	return ok
}

// sessionList sweeps and snapshots every known session with its activity
// status, ordered by session id for stable output.
func (h *Hub) sessionList() []wire.SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepActiveLocked()

	out := make([]wire.SessionInfo, 0, len(h.history))
	for id := range h.history {
		_, active := h.active[id]
		out = append(out, wire.SessionInfo{SessionID: id, IsActive: active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// activeUsers sweeps and snapshots the latest point of every active
// session that has history.
func (h *Hub) activeUsers() []wire.ActiveUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepActiveLocked()

	out := make([]wire.ActiveUser, 0, len(h.active))
	for id := range h.active {
		points := h.history[id]
		if len(points) == 0 {
			continue
		}
		out = append(out, wire.ActiveUserFromPoint(id, points[len(points)-1]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// appendHistory adds a broadcast-shaped point to the session's history.
func (h *Hub) appendHistory(sessionID string, p wire.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history[sessionID] = append(h.history[sessionID], p)
	h.metrics.TrackedSessions.Set(float64(len(h.history)))
}

// latestPoint returns the most recent history point of a session.
func (h *Hub) latestPoint(sessionID string) (wire.Point, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	points := h.history[sessionID]
	if len(points) == 0 {
		return nil, false
	}
	return points[len(points)-1], true
}

// archiveSession moves a reset session's points under the archive key and
// evicts the original from the active set. Detector state for the
// original id is cleared by the caller.
func (h *Hub) archiveSession(originalID, archiveKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	points := h.history[originalID]
	if len(points) > 0 {
		h.logger.Info("archiving session history",
			slog.String("session_id", originalID),
			slog.String("archive_key", archiveKey),
			slog.Int("points", len(points)),
		)
		h.history[archiveKey] = points
		h.history[originalID] = nil
	}

	delete(h.active, originalID)
	h.metrics.ActiveSessions.Set(float64(len(h.active)))
	h.metrics.TrackedSessions.Set(float64(len(h.history)))
}

// historySnapshot returns all points of all sessions sorted by their wire
// timestamp, for history replay.
func (h *Hub) historySnapshot() []wire.Point {
	h.mu.Lock()
	h.sweepActiveLocked()
	all := make([]wire.Point, 0, 256)
	for _, points := range h.history {
		all = append(all, points...)
	}
	h.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool {
		ti, errI := time.ParseInLocation(geo.WireTimestampFormat, all[i].Timestamp(), time.Local)
		tj, errJ := time.ParseInLocation(geo.WireTimestampFormat, all[j].Timestamp(), time.Local)
		if errI != nil || errJ != nil {
			return errJ == nil
		}
		return ti.Before(tj)
	})
	return all
}
