package dedup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bernd-roth/GeoTracker/internal/config"
	"github.com/bernd-roth/GeoTracker/internal/geo"
	"github.com/bernd-roth/GeoTracker/internal/store"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// fakeSource serves canned candidates and samples.
type fakeSource struct {
	candidates []store.CandidateSession
	samples    map[string][]store.SamplePoint
}

func (f *fakeSource) DuplicateCandidates(_ context.Context, _ int64, _, _ time.Time) ([]store.CandidateSession, error) {
	return f.candidates, nil
}

func (f *fakeSource) SessionSamplePoints(_ context.Context, sessionID string) ([]store.SamplePoint, error) {
	return f.samples[sessionID], nil
}

func testConfig() config.DedupConfig {
	return config.DedupConfig{
		Enabled:              true,
		TimeToleranceSeconds: 5,
		CoordinateTolerance:  0.0001,
		SearchWindowDays:     1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// uploadPoints builds n points one second apart starting at base, walking
// a gentle diagonal from (lat, lon).
func uploadPoints(base time.Time, n int, lat, lon float64) []wire.Point {
	points := make([]wire.Point, n)
	for i := range points {
		points[i] = wire.Point{
			"timestamp": base.Add(time.Duration(i) * time.Second).Format(geo.WireTimestampFormat),
			"latitude":  lat + float64(i)*0.00001,
			"longitude": lon + float64(i)*0.00001,
		}
	}
	return points
}

// samplesFor mirrors the first/middle/last sampling the store performs.
func samplesFor(points []wire.Point, shift float64) []store.SamplePoint {
	pick := []int{0, len(points) / 2, len(points) - 1}
	out := make([]store.SamplePoint, 0, 3)
	for _, i := range pick {
		t, _ := time.ParseInLocation(geo.WireTimestampFormat, points[i].Timestamp(), time.Local)
		out = append(out, store.SamplePoint{
			Latitude:   points[i].Float("latitude") + shift,
			Longitude:  points[i].Float("longitude") + shift,
			ReceivedAt: t,
		})
	}
	return out
}

func TestCheckFindsDuplicate(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	points := uploadPoints(base, 100, 48.2, 16.3)

	src := &fakeSource{
		candidates: []store.CandidateSession{
			{SessionID: "existing", StartDateTime: base, PointCount: 100},
		},
		// Within 0.00005 degrees and identical timestamps.
		samples: map[string][]store.SamplePoint{
			"existing": samplesFor(points, 0.00005),
		},
	}

	d := New(src, testConfig(), discardLogger())
	dup, err := d.Check(context.Background(), 1, points)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if dup == nil {
		t.Fatal("expected a duplicate, got none")
	}
	if dup.SessionID != "existing" {
		t.Errorf("duplicate session = %q, want existing", dup.SessionID)
	}
}

func TestCheckCoordinateDeltaAboveTolerance(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	points := uploadPoints(base, 100, 48.2, 16.3)

	src := &fakeSource{
		candidates: []store.CandidateSession{
			{SessionID: "existing", StartDateTime: base, PointCount: 100},
		},
		samples: map[string][]store.SamplePoint{
			"existing": samplesFor(points, 0.0002),
		},
	}

	d := New(src, testConfig(), discardLogger())
	dup, err := d.Check(context.Background(), 1, points)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if dup != nil {
		t.Errorf("upload refused despite 0.0002 degree offset, duplicate = %q", dup.SessionID)
	}
}

func TestCheckTimeDiffAboveTolerance(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	points := uploadPoints(base, 100, 48.2, 16.3)

	// Same route, shifted six seconds.
	shifted := uploadPoints(base.Add(6*time.Second), 100, 48.2, 16.3)

	src := &fakeSource{
		candidates: []store.CandidateSession{
			{SessionID: "existing", StartDateTime: base, PointCount: 100},
		},
		samples: map[string][]store.SamplePoint{
			"existing": samplesFor(shifted, 0),
		},
	}

	d := New(src, testConfig(), discardLogger())
	dup, err := d.Check(context.Background(), 1, points)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if dup != nil {
		t.Error("6s start shift must exceed the 5s tolerance")
	}
}

func TestCheckSmallUploadNeverMatches(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	points := uploadPoints(base, 2, 48.2, 16.3)

	src := &fakeSource{
		candidates: []store.CandidateSession{
			{SessionID: "existing", StartDateTime: base, PointCount: 2},
		},
		samples: map[string][]store.SamplePoint{
			"existing": {
				{Latitude: 48.2, Longitude: 16.3, ReceivedAt: base},
				{Latitude: 48.2, Longitude: 16.3, ReceivedAt: base},
				{Latitude: 48.2, Longitude: 16.3, ReceivedAt: base.Add(time.Second)},
			},
		},
	}

	d := New(src, testConfig(), discardLogger())
	dup, err := d.Check(context.Background(), 1, points)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if dup != nil {
		t.Error("uploads below three points must never be refused")
	}
}

func TestCheckDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enabled = false

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	points := uploadPoints(base, 100, 48.2, 16.3)

	src := &fakeSource{
		candidates: []store.CandidateSession{
			{SessionID: "existing", StartDateTime: base, PointCount: 100},
		},
		samples: map[string][]store.SamplePoint{
			"existing": samplesFor(points, 0),
		},
	}

	d := New(src, cfg, discardLogger())
	dup, err := d.Check(context.Background(), 1, points)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if dup != nil {
		t.Error("disabled detector must not refuse uploads")
	}
}

func TestCheckSkipsSentinelSamples(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	points := uploadPoints(base, 100, 48.2, 16.3)
	points[0]["latitude"] = geo.SentinelCoordinate

	src := &fakeSource{
		candidates: []store.CandidateSession{
			{SessionID: "existing", StartDateTime: base, PointCount: 100},
		},
		samples: map[string][]store.SamplePoint{
			"existing": samplesFor(uploadPoints(base, 100, 48.2, 16.3), 0),
		},
	}

	d := New(src, testConfig(), discardLogger())
	dup, err := d.Check(context.Background(), 1, points)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if dup != nil {
		t.Error("a sentinel coordinate in the samples must disqualify the match")
	}
}

func TestCheckManyCandidatesPicksMatching(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	points := uploadPoints(base, 50, 48.2, 16.3)

	var candidates []store.CandidateSession
	samples := make(map[string][]store.SamplePoint)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("session-%d", i)
		candidates = append(candidates, store.CandidateSession{SessionID: id, StartDateTime: base, PointCount: 50})
		// All but session-3 are spatially far away.
		shift := 0.5
		if i == 3 {
			shift = 0
		}
		samples[id] = samplesFor(points, shift)
	}

	d := New(&fakeSource{candidates: candidates, samples: samples}, testConfig(), discardLogger())
	dup, err := d.Check(context.Background(), 1, points)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if dup == nil || dup.SessionID != "session-3" {
		t.Errorf("duplicate = %v, want session-3", dup)
	}
}
