package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bernd-roth/GeoTracker/internal/config"
	"github.com/bernd-roth/GeoTracker/internal/dedup"
	hubmetrics "github.com/bernd-roth/GeoTracker/internal/metrics"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHub builds a memory-only hub with a fixed clock.
func newTestHub(t *testing.T) (*Hub, *time.Time) {
	t.Helper()

	logger := discardLogger()
	collector := hubmetrics.NewCollector(prometheus.NewRegistry())
	retention := config.RetentionConfig{
		DataRetentionHours:     24,
		CleanupIntervalSeconds: 3600,
		EnableAutomaticCleanup: true,
	}
	h := New(nil, dedup.New(nil, config.DedupConfig{}, logger), retention, collector, logger)

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)
	h.now = func() time.Time { return now }
	h.resets.SetClock(func() time.Time { return now })
	return h, &now
}

// addClient registers a client with no socket; frames queue on its send
// channel for the test to inspect.
func addClient(h *Hub) *Client {
	c := newClient(h, nil)
	h.register(c)
	return c
}

// drainFrames empties the client's queue and returns the decoded type of
// every JSON frame.
func drainFrames(t *testing.T, c *Client) []string {
	t.Helper()

	var types []string
	for {
		select {
		case data := <-c.send:
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("undecodable frame %q: %v", data, err)
			}
			types = append(types, env.Type)
		default:
			return types
		}
	}
}

func telemetryFrame(t *testing.T, doc string) *wire.Telemetry {
	t.Helper()

	frame, err := wire.DecodeFrame([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	tel, err := frame.Telemetry()
	if err != nil {
		t.Fatalf("Telemetry: %v", err)
	}
	return tel
}

func basicTelemetry(t *testing.T, sessionID string, lat, lon, distance float64) *wire.Telemetry {
	t.Helper()

	doc := map[string]any{
		"sessionId":          sessionID,
		"firstname":          "anna",
		"latitude":           lat,
		"longitude":          lon,
		"distance":           distance,
		"currentSpeed":       3.5,
		"maxSpeed":           5.0,
		"movingAverageSpeed": 3.1,
		"averageSpeed":       2.9,
		"currentDateTime":    "2025-06-15T12:00:00",
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal telemetry: %v", err)
	}
	return telemetryFrame(t, string(data))
}

// ---------------------------------------------------------------------------
// Follow Indices
// ---------------------------------------------------------------------------

func TestFollowIndicesStayConsistent(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	a := addClient(h)
	b := addClient(h)

	h.setFollows(a, []string{"s1", "s2"})
	h.setFollows(b, []string{"s2"})

	h.mu.RLock()
	if len(h.followers["s2"]) != 2 {
		t.Errorf("followers[s2] = %d, want 2", len(h.followers["s2"]))
	}
	h.mu.RUnlock()

	h.unregister(a)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.follows[a]; ok {
		t.Error("unregistered client still in follows index")
	}
	if _, ok := h.followers["s1"]; ok {
		t.Error("followers[s1] should be gone after its only follower left")
	}
	if len(h.followers["s2"]) != 1 {
		t.Errorf("followers[s2] = %d after unregister, want 1", len(h.followers["s2"]))
	}
}

func TestFollowReplacesPreviousSet(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)

	h.setFollows(c, []string{"s1", "s2"})
	h.setFollows(c, []string{"s3"})

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.follows[c]["s1"]; ok {
		t.Error("old subscription s1 survived a replace")
	}
	if _, ok := h.followers["s2"]; ok {
		t.Error("followers[s2] not torn down on replace")
	}
	if _, ok := h.followers["s3"][c]; !ok {
		t.Error("new subscription s3 missing from followers index")
	}
}

func TestUnfollowClearsEverything(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)

	h.setFollows(c, []string{"s1"})
	h.clearFollows(c)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.follows[c]) != 0 || len(h.followers["s1"]) != 0 {
		t.Error("follow state survived unfollow")
	}
}

// ---------------------------------------------------------------------------
// Liveness
// ---------------------------------------------------------------------------

func TestSessionExpiresAfterActivityTimeout(t *testing.T) {
	t.Parallel()

	h, now := newTestHub(t)

	if !h.touchSession("s1") {
		t.Fatal("first touch should report newly active")
	}
	if h.touchSession("s1") {
		t.Error("second touch should not report newly active")
	}
	if !h.isActive("s1") {
		t.Fatal("session should be active right after a touch")
	}

	*now = now.Add(activityTimeout + time.Second)
	if h.isActive("s1") {
		t.Error("session still active past the timeout")
	}

	// A fresh point revives it.
	if !h.touchSession("s1") {
		t.Error("touch after expiry should report newly active again")
	}
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngestBroadcastsAndRecordsHistory(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)

	h.ingest(context.Background(), c, basicTelemetry(t, "s1", 48.2, 16.37, 100))

	if pts := h.history["s1"]; len(pts) != 1 {
		t.Fatalf("history[s1] = %d points, want 1", len(pts))
	}
	types := drainFrames(t, c)
	if !containsType(types, wire.TypeActiveUsers) {
		t.Errorf("newly active session should trigger active_users, got %v", types)
	}
	if !containsType(types, wire.TypeUpdate) {
		t.Errorf("ingest should broadcast an update, got %v", types)
	}
}

func TestIngestRejectsInvalidCoordinates(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)

	h.ingest(context.Background(), c, basicTelemetry(t, "s1", -999, -999, 0))

	if len(h.history["s1"]) != 0 {
		t.Error("gated point must not enter history")
	}
	if !h.isActive("s1") {
		t.Error("gated point must still keep the session alive")
	}

	types := drainFrames(t, c)
	if !containsType(types, wire.TypeInvalidCoordinates) {
		t.Errorf("expected invalid_coordinates broadcast, got %v", types)
	}
	if containsType(types, wire.TypeUpdate) {
		t.Errorf("gated point must not produce an update, got %v", types)
	}
}

func TestIngestArchivesOnSessionReset(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)
	ctx := context.Background()

	h.ingest(ctx, c, basicTelemetry(t, "s1", 48.2, 16.37, 5000))
	// Same id, far away, cumulative distance collapsed: a new recording.
	h.ingest(ctx, c, basicTelemetry(t, "s1", 48.3, 16.37, 10))

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.history["s1"]) != 0 {
		t.Errorf("original key should be drained after a reset, has %d points", len(h.history["s1"]))
	}
	var archived, renamed bool
	for id, pts := range h.history {
		if len(pts) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(id, "s1_archived_"):
			archived = true
		case strings.HasPrefix(id, "s1_reset_"):
			renamed = true
		}
	}
	if !archived {
		t.Error("pre-reset points were not archived")
	}
	if !renamed {
		t.Error("post-reset point did not land under a reset session id")
	}
}

// ---------------------------------------------------------------------------
// Backpressure
// ---------------------------------------------------------------------------

func TestSlowClientIsDropped(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)

	for i := 0; i < sendBufferSize; i++ {
		if !c.trySend([]byte("x")) {
			t.Fatalf("buffer filled early at %d", i)
		}
	}

	if h.deliver(c, []byte("overflow")) {
		t.Error("deliver to a full queue should fail")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		t.Error("slow client should have been unregistered")
	}
}

// ---------------------------------------------------------------------------
// Retention
// ---------------------------------------------------------------------------

func TestCleanupPrunesExpiredPoints(t *testing.T) {
	t.Parallel()

	h, now := newTestHub(t)
	c := addClient(h)

	old := wire.Point{
		"sessionId": "stale",
		"timestamp": now.Add(-25 * time.Hour).Format("02-01-2006 15:04:05"),
	}
	fresh := wire.Point{
		"sessionId": "mixed",
		"timestamp": now.Add(-time.Hour).Format("02-01-2006 15:04:05"),
	}
	h.appendHistory("stale", old)
	h.appendHistory("mixed", old.Clone())
	h.appendHistory("mixed", fresh)
	drainFrames(t, c)

	message, err := h.CleanupNow()
	if err != nil {
		t.Fatalf("CleanupNow: %v", err)
	}
	if message != "Memory cleanup completed (retention: 24 hours)" {
		t.Errorf("unexpected cleanup message %q", message)
	}

	h.mu.RLock()
	if _, ok := h.history["stale"]; ok {
		t.Error("fully expired session should be removed")
	}
	if got := len(h.history["mixed"]); got != 1 {
		t.Errorf("history[mixed] = %d points, want 1", got)
	}
	h.mu.RUnlock()

	if types := drainFrames(t, c); !containsType(types, wire.TypeSessionList) {
		t.Errorf("cleanup that changed the list should re-broadcast it, got %v", types)
	}
}

func TestCleanupKeepsUnparsableTimestamps(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	h.appendHistory("odd", wire.Point{"sessionId": "odd", "timestamp": "not a date"})

	if _, err := h.CleanupNow(); err != nil {
		t.Fatalf("CleanupNow: %v", err)
	}
	if len(h.history["odd"]) != 1 {
		t.Error("point with unparsable timestamp must survive the sweep")
	}
}

// ---------------------------------------------------------------------------
// Deletion
// ---------------------------------------------------------------------------

func TestRemoveSessionRefusals(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)

	if ok, reason := h.removeSession("ghost"); ok || reason != "Session does not exist" {
		t.Errorf("removeSession(ghost) = %v, %q", ok, reason)
	}

	h.appendHistory("live", wire.Point{"sessionId": "live"})
	h.touchSession("live")
	if ok, reason := h.removeSession("live"); ok || reason != "Cannot delete active session" {
		t.Errorf("removeSession(live) = %v, %q", ok, reason)
	}
}

func TestRemoveSessionEvictsInactive(t *testing.T) {
	t.Parallel()

	h, now := newTestHub(t)
	h.appendHistory("done", wire.Point{"sessionId": "done"})
	h.touchSession("done")
	*now = now.Add(activityTimeout + time.Second)

	if ok, reason := h.removeSession("done"); !ok {
		t.Fatalf("removeSession(done) refused: %q", reason)
	}
	if _, ok := h.history["done"]; ok {
		t.Error("deleted session still in history")
	}
}

// ---------------------------------------------------------------------------
// Bulk Upload
// ---------------------------------------------------------------------------

func TestUploadWithoutStoreStillEntersHistory(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)

	doc := `{
		"type": "upload_session",
		"sessionId": "rec1",
		"firstname": "anna",
		"points": [
			{"latitude": 48.2, "longitude": 16.37, "timestamp": "15-06-2025 10:00:00"},
			{"latitude": 48.21, "longitude": 16.38, "timestamp": "15-06-2025 10:00:05"}
		]
	}`
	frame, err := wire.DecodeFrame([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	h.handleUpload(context.Background(), c, frame)

	if got := len(h.history["rec1"]); got != 2 {
		t.Fatalf("history[rec1] = %d points, want 2", got)
	}
	for _, p := range h.history["rec1"] {
		if p.SessionID() != "rec1" {
			t.Errorf("uploaded point sessionId = %q, want rec1", p.SessionID())
		}
	}
	if h.isActive("rec1") {
		t.Error("an uploaded recording must not count as a live session")
	}
	if types := drainFrames(t, c); !containsType(types, wire.TypeUploadResponse) {
		t.Errorf("expected upload_response, got %v", types)
	}
}

func TestUploadRefusedWithoutPoints(t *testing.T) {
	t.Parallel()

	h, _ := newTestHub(t)
	c := addClient(h)

	frame, err := wire.DecodeFrame([]byte(`{"type":"upload_session","sessionId":"rec1"}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	h.handleUpload(context.Background(), c, frame)

	var resp wire.UploadResponseFrame
	select {
	case data := <-c.send:
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	default:
		t.Fatal("no upload_response sent")
	}
	if resp.Success {
		t.Error("empty upload should be refused")
	}
}

func containsType(types []string, want string) bool {
	for _, ty := range types {
		if ty == want {
			return true
		}
	}
	return false
}
