// Package dedup implements the duplicate-session guard on the bulk upload
// path. A candidate upload is refused when an existing session of the same
// user matches both temporally (start, end, and duration within a
// tolerance) and spatially (first, middle, and last points within a
// coordinate tolerance).
package dedup

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/bernd-roth/GeoTracker/internal/config"
	"github.com/bernd-roth/GeoTracker/internal/geo"
	"github.com/bernd-roth/GeoTracker/internal/store"
	"github.com/bernd-roth/GeoTracker/internal/wire"
)

// Source is the slice of the store the detector reads. It exists so tests
// can feed candidates without a database.
type Source interface {
	DuplicateCandidates(ctx context.Context, userID int64, windowStart, windowEnd time.Time) ([]store.CandidateSession, error)
	SessionSamplePoints(ctx context.Context, sessionID string) ([]store.SamplePoint, error)
}

// Detector checks bulk uploads against stored sessions.
type Detector struct {
	source Source
	cfg    config.DedupConfig
	logger *slog.Logger
}

// New creates a detector reading candidates from source.
func New(source Source, cfg config.DedupConfig, logger *slog.Logger) *Detector {
	return &Detector{
		source: source,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "dedup")),
	}
}

// Check looks for an existing session of userID that duplicates the
// uploaded points. It returns nil when the check is disabled, the upload
// is too small to sample, or no stored session matches.
func (d *Detector) Check(ctx context.Context, userID int64, points []wire.Point) (*store.CandidateSession, error) {
	if !d.cfg.Enabled || len(points) == 0 {
		return nil, nil
	}

	uploadStart, uploadEnd, ok := timeExtent(points)
	if !ok {
		d.logger.Warn("no parseable timestamps in upload, skipping duplicate check")
		return nil, nil
	}
	uploadDuration := uploadEnd.Sub(uploadStart)

	window := time.Duration(d.cfg.SearchWindowDays) * 24 * time.Hour
	candidates, err := d.source.DuplicateCandidates(ctx, userID,
		uploadStart.Add(-window), uploadStart.Add(window))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	d.logger.Info("checking upload against candidate sessions",
		slog.Int64("user_id", userID),
		slog.Int("candidates", len(candidates)),
		slog.Duration("upload_duration", uploadDuration),
	)

	tolerance := d.cfg.TimeTolerance()
	for _, candidate := range candidates {
		samples, err := d.source.SessionSamplePoints(ctx, candidate.SessionID)
		if err != nil {
			return nil, err
		}
		if len(samples) < 3 {
			continue
		}

		existingStart := samples[0].ReceivedAt
		existingEnd := samples[0].ReceivedAt
		for _, sp := range samples[1:] {
			if sp.ReceivedAt.Before(existingStart) {
				existingStart = sp.ReceivedAt
			}
			if sp.ReceivedAt.After(existingEnd) {
				existingEnd = sp.ReceivedAt
			}
		}
		existingDuration := existingEnd.Sub(existingStart)

		startDiff := absDuration(uploadStart.Sub(existingStart))
		endDiff := absDuration(uploadEnd.Sub(existingEnd))
		durationDiff := absDuration(uploadDuration - existingDuration)

		if startDiff > tolerance || endDiff > tolerance || durationDiff > tolerance {
			continue
		}

		if d.samplesMatch(points, samples) {
			d.logger.Warn("duplicate session detected",
				slog.String("existing_session", candidate.SessionID),
				slog.Duration("start_diff", startDiff),
				slog.Duration("end_diff", endDiff),
			)
			found := candidate
			return &found, nil
		}
	}

	return nil, nil
}

// samplesMatch compares the upload's first, middle, and last points with
// the stored samples per axis. Uploads below three points never match;
// a sentinel coordinate in any sample disqualifies the comparison.
func (d *Detector) samplesMatch(points []wire.Point, samples []store.SamplePoint) bool {
	if len(points) < 3 || len(samples) != 3 {
		return false
	}

	uploadSamples := []wire.Point{
		points[0],
		points[len(points)/2],
		points[len(points)-1],
	}

	for i := 0; i < 3; i++ {
		lat := sampleCoord(uploadSamples[i], "latitude")
		lon := sampleCoord(uploadSamples[i], "longitude")
		if lat == geo.SentinelCoordinate || lon == geo.SentinelCoordinate {
			return false
		}

		if math.Abs(lat-samples[i].Latitude) > d.cfg.CoordinateTolerance ||
			math.Abs(lon-samples[i].Longitude) > d.cfg.CoordinateTolerance {
			return false
		}
	}
	return true
}

func sampleCoord(p wire.Point, key string) float64 {
	v, ok := p.FloatOK(key)
	if !ok {
		return geo.SentinelCoordinate
	}
	return v
}

// timeExtent parses the wire-format timestamps of the points and returns
// the earliest and latest. Unparseable timestamps are skipped.
func timeExtent(points []wire.Point) (start, end time.Time, ok bool) {
	for _, p := range points {
		raw := p.Timestamp()
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(geo.WireTimestampFormat, raw, time.Local)
		if err != nil {
			continue
		}
		if !ok {
			start, end, ok = t, t, true
			continue
		}
		if t.Before(start) {
			start = t
		}
		if t.After(end) {
			end = t
		}
	}
	return start, end, ok
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
