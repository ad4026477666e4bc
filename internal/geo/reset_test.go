package geo

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResetDetectorUnknownSession(t *testing.T) {
	t.Parallel()

	d := NewResetDetector(discardLogger())
	if d.ShouldReset("never-seen", 48.2, 16.3, 1000) {
		t.Error("a session the detector has never observed must not reset")
	}
}

func TestResetDetectorTimeGap(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewResetDetector(discardLogger())
	d.SetClock(func() time.Time { return now })

	d.Observe("run-1", 48.2, 16.3, 1000)

	now = now.Add(TimeGapThreshold)
	if d.ShouldReset("run-1", 48.2001, 16.3001, 1010) {
		t.Error("gap exactly at the threshold must not reset")
	}

	now = now.Add(time.Second)
	if !d.ShouldReset("run-1", 48.2001, 16.3001, 1010) {
		t.Error("gap above the threshold must reset")
	}
}

func TestResetDetectorCoordinateJump(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewResetDetector(discardLogger())
	d.SetClock(func() time.Time { return now })

	d.Observe("run-1", 48.2, 16.3, 1000)
	now = now.Add(5 * time.Second)

	if d.ShouldReset("run-1", 48.2+0.044, 16.3, 1010) {
		t.Error("jump below the threshold must not reset")
	}
	if !d.ShouldReset("run-1", 48.2+0.05, 16.3, 1010) {
		t.Error("jump above the threshold must reset")
	}
	// Diagonal displacement is Euclidean, not per-axis.
	if !d.ShouldReset("run-1", 48.2+0.04, 16.3+0.04, 1010) {
		t.Error("diagonal jump above the threshold must reset")
	}
}

func TestResetDetectorDistanceShrink(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewResetDetector(discardLogger())
	d.SetClock(func() time.Time { return now })

	d.Observe("run-1", 48.2, 16.3, 10000)
	now = now.Add(5 * time.Second)

	if !d.ShouldReset("run-1", 48.2, 16.3, 4999) {
		t.Error("distance below half the previous value must reset")
	}
	if d.ShouldReset("run-1", 48.2, 16.3, 5000) {
		t.Error("distance at exactly half the previous value must not reset")
	}
	if d.ShouldReset("run-1", 48.2, 16.3, 0) {
		t.Error("a zero distance must not trigger the shrink check")
	}
}

func TestResetDetectorSentinelDoesNotOverwritePosition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewResetDetector(discardLogger())
	d.SetClock(func() time.Time { return now })

	d.Observe("run-1", 48.2, 16.3, 1000)
	now = now.Add(5 * time.Second)
	d.Observe("run-1", SentinelCoordinate, SentinelCoordinate, 0)
	now = now.Add(5 * time.Second)

	// The jump is measured against the last real fix, not the sentinel.
	if !d.ShouldReset("run-1", 48.3, 16.4, 1010) {
		t.Error("jump from last real fix must still reset after a sentinel frame")
	}
}

func TestResetDetectorForget(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewResetDetector(discardLogger())
	d.SetClock(func() time.Time { return now })

	d.Observe("run-1", 48.2, 16.3, 1000)
	d.Forget("run-1")
	now = now.Add(TimeGapThreshold + time.Hour)

	if d.ShouldReset("run-1", 48.2, 16.3, 1) {
		t.Error("a forgotten session must behave like a new one")
	}
}

func TestResetDetectorIdentifiers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewResetDetector(discardLogger())
	d.SetClock(func() time.Time { return now })

	newID := d.NewSessionID("run-1")
	if want := "run-1_reset_"; !strings.HasPrefix(newID, want) {
		t.Errorf("NewSessionID = %q, want prefix %q", newID, want)
	}
	if !strings.HasSuffix(newID, "000") {
		t.Errorf("NewSessionID = %q, want millisecond suffix of the fixed clock", newID)
	}

	key := d.ArchiveKey("run-1")
	if want := "run-1_archived_"; !strings.HasPrefix(key, want) {
		t.Errorf("ArchiveKey = %q, want prefix %q", key, want)
	}
}
