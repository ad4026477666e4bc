package geo

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// -------------------------------------------------------------------------
// Reset Thresholds
// -------------------------------------------------------------------------

// Producers occasionally restart mid-activity and keep sending under the
// same session id with a fresh distance counter and a large positional
// discontinuity. The thresholds below are compile-time constants tuned
// against real recordings; they are deliberately not configurable.
const (
	// TimeGapThreshold is the silence after which the next frame is treated
	// as a restarted producer.
	TimeGapThreshold = 300 * time.Second

	// CoordinateJumpThreshold is the positional discontinuity in raw
	// Euclidean degrees (~5 km at mid latitudes). Euclidean degrees are
	// latitude-biased near the poles, which is acceptable for this domain.
	CoordinateJumpThreshold = 0.045

	// DistanceResetRatio flags a cumulative distance that dropped below
	// this fraction of the previously seen value.
	DistanceResetRatio = 0.5
)

// -------------------------------------------------------------------------
// Reset Detector
// -------------------------------------------------------------------------

// sessionTrack is the per-session detector state.
type sessionTrack struct {
	lat, lon     float64
	hasCoords    bool
	lastDistance float64
	lastSeen     time.Time
}

// ResetDetector flags producer restarts on a per-session basis.
//
// State is ephemeral: it lives only as long as the process and is cleared
// for a session when a reset fires. Frames with invalid coordinates must
// not be fed to the detector; they neither trigger resets nor advance
// detector state (the coordinate gate runs first).
type ResetDetector struct {
	mu     sync.Mutex
	tracks map[string]*sessionTrack

	// now is the clock source, replaceable in tests.
	now func() time.Time

	logger *slog.Logger
}

// NewResetDetector creates a detector with an empty state map.
func NewResetDetector(logger *slog.Logger) *ResetDetector {
	return &ResetDetector{
		tracks: make(map[string]*sessionTrack),
		now:    time.Now,
		logger: logger.With(slog.String("component", "geo.reset")),
	}
}

// ShouldReset reports whether the incoming frame for sessionID looks like a
// restarted producer. A session the detector has never seen is new, never a
// reset. Any one trigger suffices: time gap, coordinate jump, or a shrunken
// cumulative distance.
func (d *ResetDetector) ShouldReset(sessionID string, lat, lon, distance float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	track, ok := d.tracks[sessionID]
	if !ok {
		return false
	}

	if gap := d.now().Sub(track.lastSeen); gap > TimeGapThreshold {
		d.logger.Info("time gap detected",
			slog.String("session_id", sessionID),
			slog.Duration("gap", gap),
		)
		return true
	}

	if track.hasCoords {
		jump := math.Hypot(lat-track.lat, lon-track.lon)
		if jump > CoordinateJumpThreshold {
			d.logger.Info("coordinate jump detected",
				slog.String("session_id", sessionID),
				slog.Float64("jump_degrees", jump),
			)
			return true
		}
	}

	if distance > 0 && track.lastDistance > 0 && distance < track.lastDistance*DistanceResetRatio {
		d.logger.Info("distance counter reset detected",
			slog.String("session_id", sessionID),
			slog.Float64("new_distance", distance),
			slog.Float64("old_distance", track.lastDistance),
		)
		return true
	}

	return false
}

// Observe records the frame into the detector state for sessionID.
// Sentinel coordinates do not overwrite the last known position and a
// non-positive distance does not overwrite the last distance, but the
// last-seen stamp always advances.
func (d *ResetDetector) Observe(sessionID string, lat, lon, distance float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	track, ok := d.tracks[sessionID]
	if !ok {
		track = &sessionTrack{}
		d.tracks[sessionID] = track
	}

	if lat != SentinelCoordinate && lon != SentinelCoordinate {
		track.lat, track.lon = lat, lon
		track.hasCoords = true
	}

	if distance > 0 {
		track.lastDistance = distance
	}

	track.lastSeen = d.now()
}

// Forget clears the detector state for sessionID. Called when a reset fires
// so the replacement session starts from a clean slate.
func (d *ResetDetector) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tracks, sessionID)
}

// NewSessionID derives the replacement id for a reset session,
// "{original}_reset_{unix_ms}".
func (d *ResetDetector) NewSessionID(originalID string) string {
	newID := fmt.Sprintf("%s_reset_%d", originalID, d.now().UnixMilli())
	d.logger.Info("session reset",
		slog.String("old_session_id", originalID),
		slog.String("new_session_id", newID),
	)
	return newID
}

// ArchiveKey derives the history key a reset session's existing points are
// moved under, "{original}_archived_{unix_s}".
func (d *ResetDetector) ArchiveKey(originalID string) string {
	return fmt.Sprintf("%s_archived_%d", originalID, d.now().Unix())
}

// SetClock replaces the detector's time source. Test hook.
func (d *ResetDetector) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}
