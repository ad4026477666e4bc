package store

import (
	"context"
	"fmt"
	"time"
)

// -------------------------------------------------------------------------
// Duplicate Detection Queries
// -------------------------------------------------------------------------

// CandidateSession is an existing session that might be a duplicate of a
// bulk upload: same user, start time within the search window, at least
// one point.
type CandidateSession struct {
	SessionID     string
	StartDateTime time.Time
	EventName     string
	SportType     string
	Comment       string
	CreatedAt     time.Time
	PointCount    int64
}

// DuplicateCandidates returns the user's sessions whose start time falls
// within [windowStart, windowEnd] and that have stored points.
func (s *Store) DuplicateCandidates(ctx context.Context, userID int64,
	windowStart, windowEnd time.Time) ([]CandidateSession, error) {

	if !s.Available() {
		return nil, ErrUnavailable
	}

	rows, err := s.pool.Query(ctx, `
		SELECT
			ts.session_id,
			ts.start_date_time,
			COALESCE(ts.event_name, ''),
			COALESCE(ts.sport_type, ''),
			COALESCE(ts.comment, ''),
			ts.created_at,
			COUNT(gtp.id) AS point_count
		FROM tracking_sessions ts
		LEFT JOIN gps_tracking_points gtp ON ts.session_id = gtp.session_id
		WHERE ts.user_id = $1
			AND ts.start_date_time >= $2
			AND ts.start_date_time <= $3
		GROUP BY ts.session_id, ts.start_date_time, ts.event_name,
			ts.sport_type, ts.comment, ts.created_at
		HAVING COUNT(gtp.id) > 0
	`, userID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("query duplicate candidates for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []CandidateSession
	for rows.Next() {
		var c CandidateSession
		if err := rows.Scan(&c.SessionID, &c.StartDateTime, &c.EventName,
			&c.SportType, &c.Comment, &c.CreatedAt, &c.PointCount); err != nil {
			return nil, fmt.Errorf("scan candidate session: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SamplePoint is one of the three spatial samples (first, middle, last)
// of a stored session.
type SamplePoint struct {
	Latitude   float64
	Longitude  float64
	ReceivedAt time.Time
}

// SessionSamplePoints returns the first, middle, and last point of a
// session by received_at. Sessions with fewer than three points return
// fewer samples; the detector treats that as no match.
func (s *Store) SessionSamplePoints(ctx context.Context, sessionID string) ([]SamplePoint, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	rows, err := s.pool.Query(ctx, `
		WITH numbered_points AS (
			SELECT
				latitude, longitude, received_at,
				ROW_NUMBER() OVER (ORDER BY received_at) AS rn,
				COUNT(*) OVER () AS total_count
			FROM gps_tracking_points
			WHERE session_id = $1
		)
		SELECT latitude, longitude, received_at
		FROM numbered_points
		WHERE rn = 1
			OR rn = (total_count / 2)::integer
			OR rn = total_count
		ORDER BY rn
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query sample points for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []SamplePoint
	for rows.Next() {
		var sp SamplePoint
		if err := rows.Scan(&sp.Latitude, &sp.Longitude, &sp.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan sample point: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// UserIDByName resolves a user id without creating one. The duplicate
// check runs before any rows are written, so an unknown user simply means
// no duplicates are possible.
func (s *Store) UserIDByName(ctx context.Context, firstname, lastname, birthdate string) (int64, bool, error) {
	if !s.Available() {
		return 0, false, ErrUnavailable
	}

	var userID int64
	err := s.pool.QueryRow(ctx, `
		SELECT user_id FROM users
		WHERE firstname = $1 AND COALESCE(lastname, '') = $2
		AND COALESCE(birthdate, '') = $3
	`, firstname, lastname, birthdate).Scan(&userID)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("look up user %q: %w", firstname, err)
	}
	return userID, true, nil
}
